package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// DefaultFetchConcurrency bounds parallel item downloads within one request.
const DefaultFetchConcurrency = 4

// Attempt records one provider invocation.
type Attempt struct {
	Provider   string
	Candidates int
	Fetched    int
	Err        error
}

// Report is the result of running the provider chain for one URL.
type Report struct {
	Outcome  DeliveryOutcome
	Provider string // provider whose result was delivered, empty on failure
	Attempts []Attempt
	Err      error
}

// Extractor runs providers in priority order until one result is delivered.
type Extractor struct {
	providers        []Provider
	fetcher          Fetcher
	deliverer        Deliverer
	maxFileSize      int64
	fetchConcurrency int
	observer         Observer
	logger           *slog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithMaxFileSize sets the per-item size limit.
func WithMaxFileSize(n int64) ExtractorOption {
	return func(e *Extractor) { e.maxFileSize = n }
}

// WithFetchConcurrency sets how many items are downloaded at once.
func WithFetchConcurrency(n int) ExtractorOption {
	return func(e *Extractor) { e.fetchConcurrency = n }
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) ExtractorOption {
	return func(e *Extractor) { e.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExtractor creates an extractor over providers in the given order.
func NewExtractor(providers []Provider, fetcher Fetcher, deliverer Deliverer, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		providers:        providers,
		fetcher:          fetcher,
		deliverer:        deliverer,
		maxFileSize:      DefaultMaxFileSize,
		fetchConcurrency: DefaultFetchConcurrency,
		observer:         nopObserver{},
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract tries each provider in order. It stops at the first provider whose
// batch triages to something deliverable, and never tries the rest after a
// delivery attempt, successful or not.
func (e *Extractor) Extract(ctx context.Context, src SourceURL, target Target) Report {
	var rep Report
	var lastErr error

	for _, p := range e.providers {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		att, sel := e.try(ctx, p, src)
		rep.Attempts = append(rep.Attempts, att)
		if att.Err != nil {
			lastErr = att.Err
			e.observer.ProviderAttempt(p.Name(), attemptResult(att.Err))
			e.logger.Warn("provider attempt failed",
				"provider", p.Name(), "candidates", att.Candidates, "fetched", att.Fetched, "error", att.Err)
			continue
		}
		e.observer.ProviderAttempt(p.Name(), "success")

		if err := e.deliverer.Deliver(ctx, target, sel); err != nil {
			derr := &DeliveryError{Kind: sel.Kind, Err: err}
			rep.Provider = p.Name()
			rep.Err = derr
			rep.Outcome = DeliveryOutcome{Kind: sel.Kind, ErrorReason: derr.Error()}
			return rep
		}

		rep.Provider = p.Name()
		rep.Outcome = sel.Outcome()
		e.logger.Info("delivered",
			"provider", p.Name(), "kind", sel.Kind, "items", len(sel.Items), "bytes", sel.TotalBytes(),
			"skipped_oversize", sel.SkippedOversize)
		return rep
	}

	if lastErr == nil {
		lastErr = ErrNoProviderSucceeded
	} else if !errors.Is(lastErr, context.Canceled) && !errors.Is(lastErr, context.DeadlineExceeded) {
		lastErr = fmt.Errorf("%w: %w", ErrNoProviderSucceeded, lastErr)
	}
	rep.Err = lastErr
	rep.Outcome = DeliveryOutcome{Kind: KindUnknown, ErrorReason: lastErr.Error()}
	return rep
}

// try runs one provider and triages its batch. A non-nil Attempt.Err means
// the chain should move on.
func (e *Extractor) try(ctx context.Context, p Provider, src SourceURL) (Attempt, Selection) {
	att := Attempt{Provider: p.Name()}

	descs, err := p.FetchCandidates(ctx, src)
	if err != nil {
		att.Err = &ProviderError{Provider: p.Name(), Err: err}
		return att, Selection{}
	}
	att.Candidates = len(descs)
	if len(descs) == 0 {
		att.Err = &ProviderError{Provider: p.Name(), Err: ErrNoCandidates}
		return att, Selection{}
	}

	items := e.fetchAll(ctx, descs)
	att.Fetched = len(items)
	if len(items) == 0 {
		err := ErrFetchFailed
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		att.Err = &ProviderError{Provider: p.Name(), Err: err}
		return att, Selection{}
	}

	sel := Triage(items, e.maxFileSize)
	if !sel.OK() {
		att.Err = &ProviderError{Provider: p.Name(), Err: sel.Err}
	}
	return att, sel
}

// fetchAll downloads descriptors concurrently. Failed items are dropped; the
// rest keep descriptor order.
func (e *Extractor) fetchAll(ctx context.Context, descs []Descriptor) []FetchedItem {
	slots := make([]*FetchedItem, len(descs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.fetchConcurrency, 1))
	for i, d := range descs {
		i, d := i, d
		g.Go(func() error {
			data, err := e.fetcher.Fetch(gctx, d, e.maxFileSize)
			if err != nil {
				e.logger.Debug("item fetch failed", "url", d.URL, "error", err)
				return nil
			}
			it := NewFetchedItem(d, data)
			slots[i] = &it
			return nil
		})
	}
	_ = g.Wait()

	items := make([]FetchedItem, 0, len(descs))
	for _, it := range slots {
		if it != nil {
			items = append(items, *it)
		}
	}
	return items
}

func attemptResult(err error) string {
	switch {
	case errors.Is(err, ErrNoCandidates):
		return "empty"
	case errors.Is(err, ErrFetchFailed):
		return "fetch_failed"
	case errors.Is(err, ErrAllOversize):
		return "oversize"
	case errors.Is(err, ErrNoRecognizableMedia):
		return "unrecognized"
	default:
		return "error"
	}
}
