package telegram

import (
	"context"
	"fmt"

	"github.com/cwygoda/tokbot/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Deliverer implements domain.Deliverer by uploading the selected bytes as a
// reply to the user's message.
type Deliverer struct {
	api API
}

// NewDeliverer creates a Deliverer.
func NewDeliverer(api API) *Deliverer {
	return &Deliverer{api: api}
}

// Deliver sends one photo, a media group, one video or one audio file
// depending on the selection kind.
func (d *Deliverer) Deliver(ctx context.Context, target domain.Target, sel domain.Selection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(sel.Items) == 0 {
		return fmt.Errorf("empty %s selection", sel.Kind)
	}

	switch sel.Kind {
	case domain.KindImage:
		if len(sel.Items) == 1 {
			msg := tgbotapi.NewPhoto(target.ChatID, fileBytes("photo.jpg", sel.Items[0]))
			msg.ReplyToMessageID = target.ReplyTo
			return d.send(msg)
		}
		return d.sendGroup(target, sel.Items)
	case domain.KindVideo:
		msg := tgbotapi.NewVideo(target.ChatID, fileBytes("video.mp4", sel.Items[0]))
		msg.ReplyToMessageID = target.ReplyTo
		msg.SupportsStreaming = true
		return d.send(msg)
	case domain.KindAudio:
		msg := tgbotapi.NewAudio(target.ChatID, fileBytes("audio.mp3", sel.Items[0]))
		msg.ReplyToMessageID = target.ReplyTo
		return d.send(msg)
	default:
		return fmt.Errorf("cannot deliver %s media", sel.Kind)
	}
}

func (d *Deliverer) send(c tgbotapi.Chattable) error {
	if _, err := d.api.Send(c); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (d *Deliverer) sendGroup(target domain.Target, items []domain.FetchedItem) error {
	if len(items) > domain.MaxGroupSize {
		items = items[:domain.MaxGroupSize]
	}
	media := make([]interface{}, 0, len(items))
	for i, it := range items {
		media = append(media, tgbotapi.NewInputMediaPhoto(fileBytes(fmt.Sprintf("photo_%d.jpg", i+1), it)))
	}
	group := tgbotapi.NewMediaGroup(target.ChatID, media)
	group.ReplyToMessageID = target.ReplyTo
	if _, err := d.api.SendMediaGroup(group); err != nil {
		return fmt.Errorf("telegram send media group: %w", err)
	}
	return nil
}

func fileBytes(name string, it domain.FetchedItem) tgbotapi.FileBytes {
	return tgbotapi.FileBytes{Name: name, Bytes: it.Data}
}
