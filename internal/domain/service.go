package domain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrent is the default number of requests allowed past the gate.
const DefaultMaxConcurrent = 5

// Request is one inbound user message.
type Request struct {
	User      User
	ChatID    int64
	MessageID int
	Text      string
}

// RequestService handles user requests end to end: link extraction, the
// concurrency gate, the provider chain and telemetry.
type RequestService struct {
	extractor *Extractor
	users     UsageRepository
	recorder  UsageRecorder
	gate      *semaphore.Weighted
	timeout   time.Duration
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

// ServiceConfig holds RequestService settings.
type ServiceConfig struct {
	MaxConcurrent  int
	RequestTimeout time.Duration
	Observer       Observer
	Logger         *slog.Logger
	// Recorder receives usage events. Defaults to the repository.
	Recorder UsageRecorder
}

// NewRequestService creates a RequestService.
func NewRequestService(extractor *Extractor, repo UsageRepository, cfg ServiceConfig) *RequestService {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = repo
	}
	return &RequestService{
		extractor: extractor,
		users:     repo,
		recorder:  cfg.Recorder,
		gate:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		timeout:   cfg.RequestTimeout,
		observer:  cfg.Observer,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Handle processes one message. It returns ErrNoSourceURL, without recording
// anything, when the text holds no supported link. Otherwise the report
// describes the delivery and exactly one usage event has been emitted.
func (s *RequestService) Handle(ctx context.Context, req Request) (Report, error) {
	src, err := ExtractSourceURL(req.Text)
	if err != nil {
		return Report{}, err
	}

	logger := s.logger.With("request_id", uuid.NewString(), "user_id", req.User.TelegramID, "url", src)

	if _, err := s.users.UpsertUser(ctx, req.User); err != nil {
		logger.Error("upsert user failed", "error", err)
	}

	target := Target{ChatID: req.ChatID, ReplyTo: req.MessageID, SourceURL: src}
	return s.process(ctx, logger, req.User.TelegramID, src, target), nil
}

// Run handles a request that did not come from a chat message, such as a
// signed HTTP delivery. The usage event is attributed to target.ChatID.
func (s *RequestService) Run(ctx context.Context, src SourceURL, target Target) Report {
	logger := s.logger.With("request_id", uuid.NewString(), "chat_id", target.ChatID, "url", src)
	return s.process(ctx, logger, target.ChatID, src, target)
}

// process runs the chain, then emits the observation and exactly one usage event.
func (s *RequestService) process(ctx context.Context, logger *slog.Logger, userID int64, src SourceURL, target Target) Report {
	started := s.now()
	rep := s.run(ctx, src, target, logger)
	elapsed := s.now().Sub(started)

	s.observer.RequestFinished(rep.Outcome, elapsed)
	s.record(ctx, logger, userID, src, rep, elapsed)

	if rep.Outcome.Success {
		logger.Info("request completed", "provider", rep.Provider, "kind", rep.Outcome.Kind, "elapsed", elapsed)
	} else {
		logger.Warn("request failed", "error", rep.Err, "attempts", len(rep.Attempts), "elapsed", elapsed)
	}
	return rep
}

// run waits for a gate slot, then runs the provider chain with the request
// timeout applied. Waiting only ends early when ctx is done.
func (s *RequestService) run(ctx context.Context, src SourceURL, target Target, logger *slog.Logger) Report {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return failedReport(err)
	}
	defer s.gate.Release(1)

	s.observer.InFlight(1)
	defer s.observer.InFlight(-1)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	logger.Debug("gate acquired")
	return s.extractor.Extract(ctx, src, target)
}

// record emits the usage event. Failures are logged and never reach the user.
func (s *RequestService) record(ctx context.Context, logger *slog.Logger, userID int64, src SourceURL, rep Report, elapsed time.Duration) {
	ev := UsageEvent{
		UserID:         userID,
		URL:            src.String(),
		Provider:       rep.Provider,
		Success:        rep.Outcome.Success,
		ItemCount:      rep.Outcome.ItemsDelivered,
		FileSize:       rep.Outcome.TotalBytes,
		ErrorMessage:   rep.Outcome.ErrorReason,
		ProcessingTime: elapsed,
		Timestamp:      s.now().UTC(),
	}
	if rep.Outcome.Success {
		ev.Kind = rep.Outcome.Kind.String()
	}

	// The request context may already be cancelled; telemetry still gets written.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.recorder.Record(recCtx, ev); err != nil {
		logger.Error("record usage failed", "error", err)
	}
}

// UserStats returns one user's aggregate stats.
func (s *RequestService) UserStats(ctx context.Context, telegramID int64) (*UserStats, error) {
	return s.users.UserStats(ctx, telegramID)
}

// ServiceStats returns aggregate stats across all users.
func (s *RequestService) ServiceStats(ctx context.Context) (*ServiceStats, error) {
	return s.users.ServiceStats(ctx)
}

func failedReport(err error) Report {
	return Report{
		Err:     err,
		Outcome: DeliveryOutcome{Kind: KindUnknown, ErrorReason: err.Error()},
	}
}

// IsDeliveryError reports whether the report failed in the delivery gateway.
func (r Report) IsDeliveryError() bool {
	var derr *DeliveryError
	return errors.As(r.Err, &derr)
}
