package domain

import (
	"context"
	"time"
)

// Provider is the driven port for one upstream extraction service.
type Provider interface {
	Name() string
	// FetchCandidates returns descriptors for the media behind url. An empty
	// slice with a nil error means the service found nothing.
	FetchCandidates(ctx context.Context, url SourceURL) ([]Descriptor, error)
}

// Fetcher downloads the bytes behind a descriptor, reading at most limit+1 bytes.
type Fetcher interface {
	Fetch(ctx context.Context, d Descriptor, limit int64) ([]byte, error)
}

// Deliverer is the driven port for outbound delivery.
type Deliverer interface {
	Deliver(ctx context.Context, target Target, sel Selection) error
}

// UsageRecorder accepts telemetry events.
type UsageRecorder interface {
	Record(ctx context.Context, ev UsageEvent) error
}

// UsageRepository is the driven port for user and request persistence.
type UsageRepository interface {
	UsageRecorder
	UpsertUser(ctx context.Context, u User) (*User, error)
	UserStats(ctx context.Context, telegramID int64) (*UserStats, error)
	ServiceStats(ctx context.Context) (*ServiceStats, error)
}

// Observer receives pipeline measurements.
type Observer interface {
	ProviderAttempt(provider, result string)
	InFlight(delta int)
	RequestFinished(out DeliveryOutcome, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ProviderAttempt(string, string)                 {}
func (nopObserver) InFlight(int)                                   {}
func (nopObserver) RequestFinished(DeliveryOutcome, time.Duration) {}
