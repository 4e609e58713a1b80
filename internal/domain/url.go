package domain

import "regexp"

// SourceURL is a TikTok link extracted from user input.
type SourceURL string

func (u SourceURL) String() string { return string(u) }

// Checked in order; the first pattern found anywhere in the text wins.
var sourcePatterns = []*regexp.Regexp{
	regexp.MustCompile(`https?://(?:www\.)?tiktok\.com/[@\w/.-]+`),
	regexp.MustCompile(`https?://vt\.tiktok\.com/\w+/?`),
	regexp.MustCompile(`https?://vm\.tiktok\.com/\w+/?`),
	regexp.MustCompile(`https?://m\.tiktok\.com/[@\w/.-]+`),
}

// ExtractSourceURL finds a supported link in free text.
func ExtractSourceURL(text string) (SourceURL, error) {
	for _, re := range sourcePatterns {
		if m := re.FindString(text); m != "" {
			return SourceURL(m), nil
		}
	}
	return "", ErrNoSourceURL
}
