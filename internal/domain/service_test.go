package domain

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepo implements UsageRepository for testing.
type mockRepo struct {
	mu        sync.Mutex
	users     map[int64]User
	events    []UsageEvent
	recordErr error
	upsertErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{users: make(map[int64]User)}
}

func (r *mockRepo) Record(ctx context.Context, ev UsageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recordErr != nil {
		return r.recordErr
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *mockRepo) UpsertUser(ctx context.Context, u User) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return nil, r.upsertErr
	}
	r.users[u.TelegramID] = u
	return &u, nil
}

func (r *mockRepo) UserStats(ctx context.Context, telegramID int64) (*UserStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[telegramID]
	if !ok {
		return nil, ErrUserNotFound
	}
	st := &UserStats{User: u}
	for _, ev := range r.events {
		if ev.UserID != telegramID {
			continue
		}
		st.TotalRequests++
		if ev.Success {
			st.SuccessfulRequests++
		}
	}
	st.SuccessRate = SuccessRate(st.SuccessfulRequests, st.TotalRequests)
	return st, nil
}

func (r *mockRepo) ServiceStats(ctx context.Context) (*ServiceStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := &ServiceStats{TotalUsers: int64(len(r.users)), TotalRequests: int64(len(r.events))}
	for _, ev := range r.events {
		if ev.Success {
			st.SuccessfulRequests++
		}
	}
	st.SuccessRate = SuccessRate(st.SuccessfulRequests, st.TotalRequests)
	return st, nil
}

func (r *mockRepo) recorded() []UsageEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]UsageEvent(nil), r.events...)
}

// blockingDeliverer tracks how many deliveries overlap.
type blockingDeliverer struct {
	release chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
}

func (d *blockingDeliverer) Deliver(ctx context.Context, target Target, sel Selection) error {
	n := d.active.Add(1)
	defer d.active.Add(-1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-d.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// countingObserver records observer calls.
type countingObserver struct {
	mu       sync.Mutex
	attempts map[string]int
	inFlight int
	finished []DeliveryOutcome
}

func (o *countingObserver) ProviderAttempt(provider, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempts == nil {
		o.attempts = make(map[string]int)
	}
	o.attempts[provider+"/"+result]++
}

func (o *countingObserver) InFlight(delta int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inFlight += delta
}

func (o *countingObserver) RequestFinished(out DeliveryOutcome, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, out)
}

func videoExtractor(d Deliverer) *Extractor {
	p := &mockProvider{name: "snaptik", descs: []Descriptor{{URL: "v1"}}}
	f := &mockFetcher{payloads: map[string][]byte{"v1": payload(mp4Header, 2_000_000)}}
	return NewExtractor([]Provider{p}, f, d)
}

func testRequest(text string) Request {
	return Request{
		User:      User{TelegramID: 42, Username: "alice"},
		ChatID:    100,
		MessageID: 7,
		Text:      text,
	}
}

func TestRequestService_Handle(t *testing.T) {
	repo := newMockRepo()
	deliverer := &mockDeliverer{}
	obs := &countingObserver{}
	svc := NewRequestService(videoExtractor(deliverer), repo, ServiceConfig{Observer: obs})

	rep, err := svc.Handle(context.Background(), testRequest("look https://vm.tiktok.com/ZMabc123/ please"))
	require.NoError(t, err)
	assert.True(t, rep.Outcome.Success)

	require.Len(t, deliverer.targets, 1)
	assert.Equal(t, Target{ChatID: 100, ReplyTo: 7, SourceURL: "https://vm.tiktok.com/ZMabc123/"}, deliverer.targets[0])

	events := repo.recorded()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, int64(42), ev.UserID)
	assert.Equal(t, "https://vm.tiktok.com/ZMabc123/", ev.URL)
	assert.Equal(t, "video", ev.Kind)
	assert.Equal(t, "snaptik", ev.Provider)
	assert.True(t, ev.Success)
	assert.Equal(t, int64(2_000_000), ev.FileSize)
	assert.Equal(t, 1, ev.ItemCount)
	assert.Empty(t, ev.ErrorMessage)

	assert.Contains(t, repo.users, int64(42))
	assert.Equal(t, 1, obs.attempts["snaptik/success"])
	assert.Len(t, obs.finished, 1)
	assert.Zero(t, obs.inFlight)
}

func TestRequestService_RunRecordsOneEvent(t *testing.T) {
	repo := newMockRepo()
	deliverer := &mockDeliverer{}
	obs := &countingObserver{}
	svc := NewRequestService(videoExtractor(deliverer), repo, ServiceConfig{Observer: obs})

	src := SourceURL("https://vt.tiktok.com/ZSabc/")
	rep := svc.Run(context.Background(), src, Target{ChatID: 1, SourceURL: src})
	require.True(t, rep.Outcome.Success)
	require.Len(t, deliverer.targets, 1)

	events := repo.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].UserID, "attributed to the target chat")
	assert.Equal(t, src.String(), events[0].URL)
	assert.True(t, events[0].Success)
	assert.Equal(t, int64(2_000_000), events[0].FileSize)
	assert.Len(t, obs.finished, 1)
	assert.Empty(t, repo.users, "no user profile without a chat message")
}

func TestRequestService_RunRecordsFailure(t *testing.T) {
	repo := newMockRepo()
	p := &mockProvider{name: "snaptik"}
	svc := NewRequestService(NewExtractor([]Provider{p}, &mockFetcher{}, &mockDeliverer{}), repo, ServiceConfig{})

	rep := svc.Run(context.Background(), testURL, Target{ChatID: 9})
	assert.False(t, rep.Outcome.Success)

	events := repo.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, int64(9), events[0].UserID)
	assert.False(t, events[0].Success)
	assert.Contains(t, events[0].ErrorMessage, ErrNoProviderSucceeded.Error())
}

func TestRequestService_NoLinkRecordsNothing(t *testing.T) {
	repo := newMockRepo()
	deliverer := &mockDeliverer{}
	svc := NewRequestService(videoExtractor(deliverer), repo, ServiceConfig{})

	_, err := svc.Handle(context.Background(), testRequest("https://youtube.com/watch?v=1"))
	assert.ErrorIs(t, err, ErrNoSourceURL)
	assert.Empty(t, repo.recorded())
	assert.Empty(t, repo.users)
	assert.Empty(t, deliverer.selections)
}

func TestRequestService_FailureRecordsOneEvent(t *testing.T) {
	repo := newMockRepo()
	p := &mockProvider{name: "snaptik"}
	svc := NewRequestService(NewExtractor([]Provider{p}, &mockFetcher{}, &mockDeliverer{}), repo, ServiceConfig{})

	rep, err := svc.Handle(context.Background(), testRequest("https://www.tiktok.com/@u/video/1"))
	require.NoError(t, err)
	assert.False(t, rep.Outcome.Success)

	events := repo.recorded()
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
	assert.Empty(t, events[0].Kind)
	assert.Zero(t, events[0].FileSize)
	assert.Contains(t, events[0].ErrorMessage, ErrNoProviderSucceeded.Error())
}

func TestRequestService_DeliveryFailureRecordsNoBytes(t *testing.T) {
	repo := newMockRepo()
	svc := NewRequestService(videoExtractor(&mockDeliverer{err: errors.New("forbidden")}), repo, ServiceConfig{})

	rep, err := svc.Handle(context.Background(), testRequest("https://www.tiktok.com/@u/video/1"))
	require.NoError(t, err)
	assert.True(t, rep.IsDeliveryError())

	events := repo.recorded()
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
	assert.Zero(t, events[0].FileSize)
	assert.Zero(t, events[0].ItemCount)
	assert.Equal(t, "snaptik", events[0].Provider)
}

func TestRequestService_TelemetryErrorsAreSwallowed(t *testing.T) {
	repo := newMockRepo()
	repo.recordErr = errors.New("disk full")
	repo.upsertErr = errors.New("locked")
	svc := NewRequestService(videoExtractor(&mockDeliverer{}), repo, ServiceConfig{})

	rep, err := svc.Handle(context.Background(), testRequest("https://www.tiktok.com/@u/video/1"))
	require.NoError(t, err)
	assert.True(t, rep.Outcome.Success)
}

func TestRequestService_GateBoundsConcurrency(t *testing.T) {
	const limit, requests = 2, 6

	repo := newMockRepo()
	deliverer := &blockingDeliverer{release: make(chan struct{})}
	svc := NewRequestService(videoExtractor(deliverer), repo, ServiceConfig{MaxConcurrent: limit})

	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Handle(context.Background(), testRequest("https://www.tiktok.com/@u/video/1"))
		}()
	}

	require.Eventually(t, func() bool { return deliverer.active.Load() == limit }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(limit), deliverer.active.Load())

	close(deliverer.release)
	wg.Wait()

	assert.Equal(t, int32(limit), deliverer.peak.Load())
	assert.Len(t, repo.recorded(), requests)
}

func TestRequestService_WaitingRequestHonoursCancel(t *testing.T) {
	repo := newMockRepo()
	deliverer := &blockingDeliverer{release: make(chan struct{})}
	defer close(deliverer.release)
	svc := NewRequestService(videoExtractor(deliverer), repo, ServiceConfig{MaxConcurrent: 1})

	go func() {
		_, _ = svc.Handle(context.Background(), testRequest("https://www.tiktok.com/@u/video/1"))
	}()
	require.Eventually(t, func() bool { return deliverer.active.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	rep, err := svc.Handle(ctx, testRequest("https://www.tiktok.com/@u/video/2"))
	require.NoError(t, err)
	assert.ErrorIs(t, rep.Err, context.DeadlineExceeded)
	assert.Empty(t, rep.Attempts)
}

func TestRequestService_RequestTimeout(t *testing.T) {
	repo := newMockRepo()
	deliverer := &blockingDeliverer{release: make(chan struct{})}
	defer close(deliverer.release)
	svc := NewRequestService(videoExtractor(deliverer), repo, ServiceConfig{RequestTimeout: 20 * time.Millisecond})

	rep, err := svc.Handle(context.Background(), testRequest("https://www.tiktok.com/@u/video/1"))
	require.NoError(t, err)
	assert.True(t, rep.IsDeliveryError())
	assert.ErrorIs(t, rep.Err, context.DeadlineExceeded)
	assert.Len(t, repo.recorded(), 1)
}

func TestRequestService_Stats(t *testing.T) {
	repo := newMockRepo()
	svc := NewRequestService(videoExtractor(&mockDeliverer{}), repo, ServiceConfig{})

	_, err := svc.UserStats(context.Background(), 42)
	assert.ErrorIs(t, err, ErrUserNotFound)

	for i := 0; i < 2; i++ {
		_, err := svc.Handle(context.Background(), testRequest("https://www.tiktok.com/@u/video/1"))
		require.NoError(t, err)
	}

	us, err := svc.UserStats(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(2), us.TotalRequests)
	assert.InDelta(t, 100.0, us.SuccessRate, 0.001)

	ss, err := svc.ServiceStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), ss.TotalUsers)
	assert.Equal(t, int64(2), ss.TotalRequests)
}

func TestSuccessRate(t *testing.T) {
	assert.Zero(t, SuccessRate(0, 0))
	assert.InDelta(t, 50.0, SuccessRate(1, 2), 0.001)
	assert.InDelta(t, 100.0, SuccessRate(3, 3), 0.001)
}
