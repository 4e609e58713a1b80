package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cwygoda/tokbot/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ domain.Deliverer = (*Deliverer)(nil)

// fakeAPI records every outbound call.
type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	groups   []tgbotapi.MediaGroupConfig
	sendErr  error
	nextID   int
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: 1000 + f.nextID}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) SendMediaGroup(c tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.groups = append(f.groups, c)
	return make([]tgbotapi.Message, len(c.Media)), nil
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

// fakeService returns a canned report.
type fakeService struct {
	mu       sync.Mutex
	report   domain.Report
	err      error
	stats    *domain.UserStats
	statsErr error
	requests []domain.Request
}

func (s *fakeService) Handle(ctx context.Context, req domain.Request) (domain.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.report, s.err
}

func (s *fakeService) UserStats(ctx context.Context, id int64) (*domain.UserStats, error) {
	return s.stats, s.statsErr
}

// fakeUpdates feeds a channel and closes it on stop.
type fakeUpdates struct {
	ch   chan tgbotapi.Update
	once sync.Once
}

func (u *fakeUpdates) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return u.ch }
func (u *fakeUpdates) StopReceivingUpdates()                                        { u.once.Do(func() { close(u.ch) }) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func textMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 7,
		Text:      text,
		Chat:      &tgbotapi.Chat{ID: 99},
		From:      &tgbotapi.User{ID: 42, UserName: "alice", FirstName: "Alice"},
	}
}

func commandMessage(cmd string) *tgbotapi.Message {
	msg := textMessage("/" + cmd)
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd) + 1}}
	return msg
}

func newTestBot(svc Service) (*Bot, *fakeAPI) {
	api := &fakeAPI{}
	return NewBot(api, &fakeUpdates{ch: make(chan tgbotapi.Update)}, svc, quietLogger()), api
}

const link = "look https://vm.tiktok.com/ZMabc123/ !"

func TestBot_Commands(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{"start", welcomeText},
		{"help", helpText},
		{"unknown", helpText},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			bot, api := newTestBot(&fakeService{})
			bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: commandMessage(tt.cmd)})
			assert.Equal(t, []string{tt.want}, api.texts())
		})
	}
}

func TestBot_RejectsTextWithoutLink(t *testing.T) {
	svc := &fakeService{}
	bot, api := newTestBot(svc)

	bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: textMessage("hello there")})

	assert.Equal(t, []string{rejectText}, api.texts())
	assert.Empty(t, svc.requests, "no request reaches the pipeline")
}

func TestBot_SuccessDeletesNotice(t *testing.T) {
	svc := &fakeService{report: domain.Report{Outcome: domain.DeliveryOutcome{Success: true, Kind: domain.KindVideo}}}
	bot, api := newTestBot(svc)

	bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: textMessage(link)})

	assert.Equal(t, []string{processingText}, api.texts())
	require.Len(t, api.requests, 1)
	del, ok := api.requests[0].(tgbotapi.DeleteMessageConfig)
	require.True(t, ok, "notice is deleted")
	assert.Equal(t, 1001, del.MessageID)

	require.Len(t, svc.requests, 1)
	req := svc.requests[0]
	assert.Equal(t, int64(42), req.User.TelegramID)
	assert.Equal(t, "alice", req.User.Username)
	assert.Equal(t, int64(99), req.ChatID)
	assert.Equal(t, 7, req.MessageID)
}

func TestBot_FailureEditsNotice(t *testing.T) {
	tests := []struct {
		name string
		svc  *fakeService
		want string
	}{
		{
			name: "exhausted",
			svc:  &fakeService{report: domain.Report{Err: domain.ErrNoProviderSucceeded}},
			want: failedText,
		},
		{
			name: "delivery error",
			svc: &fakeService{report: domain.Report{
				Err: &domain.DeliveryError{Kind: domain.KindVideo, Err: errors.New("too big")},
			}},
			want: errorText,
		},
		{
			name: "unexpected error",
			svc:  &fakeService{err: errors.New("boom")},
			want: errorText,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot, api := newTestBot(tt.svc)
			bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: textMessage(link)})

			require.Len(t, api.requests, 1)
			edit, ok := api.requests[0].(tgbotapi.EditMessageTextConfig)
			require.True(t, ok, "notice is edited")
			assert.Equal(t, tt.want, edit.Text)
			assert.Equal(t, 1001, edit.MessageID)
		})
	}
}

func TestBot_Stats(t *testing.T) {
	created := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	svc := &fakeService{stats: &domain.UserStats{
		User:               domain.User{TelegramID: 42, CreatedAt: created},
		TotalRequests:      4,
		SuccessfulRequests: 3,
		SuccessRate:        75,
	}}
	bot, api := newTestBot(svc)

	bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: commandMessage("stats")})

	texts := api.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Requests: 4")
	assert.Contains(t, texts[0], "Success rate: 75.0%")
	assert.Contains(t, texts[0], "2026-02-03")
}

func TestBot_StatsUnknownUser(t *testing.T) {
	bot, api := newTestBot(&fakeService{statsErr: domain.ErrUserNotFound})
	bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: commandMessage("stats")})
	assert.Equal(t, []string{noStatsText}, api.texts())
}

func TestBot_IgnoresNonMessageUpdates(t *testing.T) {
	bot, api := newTestBot(&fakeService{})
	bot.HandleUpdate(context.Background(), tgbotapi.Update{UpdateID: 1})
	assert.Empty(t, api.texts())
}

func TestBot_Run(t *testing.T) {
	svc := &fakeService{report: domain.Report{Outcome: domain.DeliveryOutcome{Success: true}}}
	api := &fakeAPI{}
	updates := &fakeUpdates{ch: make(chan tgbotapi.Update, 2)}
	bot := NewBot(api, updates, svc, quietLogger())

	updates.ch <- tgbotapi.Update{UpdateID: 1, Message: textMessage(link)}
	updates.ch <- tgbotapi.Update{UpdateID: 2, Message: commandMessage("start")}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- bot.Run(ctx) }()

	require.Eventually(t, func() bool { return len(api.texts()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.ElementsMatch(t, []string{processingText, welcomeText}, api.texts())
}

func TestDeliverer(t *testing.T) {
	target := domain.Target{ChatID: 5, ReplyTo: 9}
	photo := domain.FetchedItem{Data: []byte{0xFF, 0xD8, 0xFF}, Size: 3}

	t.Run("single photo", func(t *testing.T) {
		api := &fakeAPI{}
		err := NewDeliverer(api).Deliver(context.Background(), target, domain.Selection{Kind: domain.KindImage, Items: []domain.FetchedItem{photo}})
		require.NoError(t, err)
		require.Len(t, api.sent, 1)
		msg, ok := api.sent[0].(tgbotapi.PhotoConfig)
		require.True(t, ok)
		assert.Equal(t, int64(5), msg.ChatID)
		assert.Equal(t, 9, msg.ReplyToMessageID)
	})

	t.Run("media group", func(t *testing.T) {
		api := &fakeAPI{}
		items := make([]domain.FetchedItem, 12)
		for i := range items {
			items[i] = photo
		}
		err := NewDeliverer(api).Deliver(context.Background(), target, domain.Selection{Kind: domain.KindImage, Items: items})
		require.NoError(t, err)
		require.Len(t, api.groups, 1)
		assert.Len(t, api.groups[0].Media, domain.MaxGroupSize)
		assert.Equal(t, 9, api.groups[0].ReplyToMessageID)
	})

	t.Run("video", func(t *testing.T) {
		api := &fakeAPI{}
		err := NewDeliverer(api).Deliver(context.Background(), target, domain.Selection{Kind: domain.KindVideo, Items: []domain.FetchedItem{{Data: []byte("v")}}})
		require.NoError(t, err)
		_, ok := api.sent[0].(tgbotapi.VideoConfig)
		assert.True(t, ok)
	})

	t.Run("audio", func(t *testing.T) {
		api := &fakeAPI{}
		err := NewDeliverer(api).Deliver(context.Background(), target, domain.Selection{Kind: domain.KindAudio, Items: []domain.FetchedItem{{Data: []byte("a")}}})
		require.NoError(t, err)
		_, ok := api.sent[0].(tgbotapi.AudioConfig)
		assert.True(t, ok)
	})

	t.Run("send error", func(t *testing.T) {
		api := &fakeAPI{sendErr: errors.New("Request Entity Too Large")}
		err := NewDeliverer(api).Deliver(context.Background(), target, domain.Selection{Kind: domain.KindVideo, Items: []domain.FetchedItem{{Data: []byte("v")}}})
		assert.ErrorContains(t, err, "Request Entity Too Large")
	})

	t.Run("empty selection", func(t *testing.T) {
		err := NewDeliverer(&fakeAPI{}).Deliver(context.Background(), target, domain.Selection{Kind: domain.KindVideo})
		assert.Error(t, err)
	})
}
