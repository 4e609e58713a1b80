package telegram

import (
	"fmt"

	"github.com/cwygoda/tokbot/internal/domain"
)

const (
	welcomeText = "Hi! 👋 Send me a TikTok URL and I'll download it for you!\n\n" +
		"Supported:\n" +
		"• 🎥 TikTok videos\n" +
		"• 📸 TikTok photo carousels\n" +
		"• 🎵 TikTok audio\n\n" +
		"Just paste any TikTok link!"

	helpText = "Help 📖\n\n" +
		"1. Send me any TikTok URL\n" +
		"2. I will download it for you\n" +
		"3. You will receive the content\n\n" +
		"Commands:\n" +
		"/stats - your download statistics\n\n" +
		"Examples:\n" +
		"• https://www.tiktok.com/@user/video/123456789\n" +
		"• https://vt.tiktok.com/ZSxxxxx/\n" +
		"• https://www.tiktok.com/@user/photo/123456789"

	rejectText = "Please send a valid TikTok URL! 🔗\n\n" +
		"Examples:\n" +
		"• https://www.tiktok.com/@user/video/123456789\n" +
		"• https://vt.tiktok.com/ZSxxxxx/"

	processingText = "⏳ Processing..."
	failedText     = "❌ Failed to download this content"
	errorText      = "❌ Error occurred"
	noStatsText    = "📊 No downloads yet. Send me a TikTok link to get started!"
	statsErrorText = "❌ Could not load your statistics"
)

func statsText(s *domain.UserStats) string {
	return fmt.Sprintf("📊 Your statistics\n\n"+
		"Requests: %d\n"+
		"Successful: %d\n"+
		"Success rate: %.1f%%\n"+
		"Member since: %s",
		s.TotalRequests, s.SuccessfulRequests, s.SuccessRate, s.CreatedAt.Format("2006-01-02"))
}
