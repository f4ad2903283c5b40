package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Laixer/Swabbr-Backend-sub003/internal/domain"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/notification"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/pool"
)

type mockStore struct {
	mu       sync.Mutex
	requests map[uuid.UUID]domain.VlogRequest
	devices  map[uuid.UUID][]domain.DeviceRegistration

	insertErr     error
	getErr        error
	transitionErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		requests: make(map[uuid.UUID]domain.VlogRequest),
		devices:  make(map[uuid.UUID][]domain.DeviceRegistration),
	}
}

func (m *mockStore) InsertVlogRequest(ctx context.Context, req domain.VlogRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.requests[req.ID] = req
	return nil
}

func (m *mockStore) GetRequestByLivestream(ctx context.Context, livestreamID string) (domain.VlogRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domain.VlogRequest{}, m.getErr
	}
	for _, req := range m.requests {
		if req.LivestreamID == livestreamID {
			return req, nil
		}
	}
	return domain.VlogRequest{}, errors.New("not found")
}

func (m *mockStore) TransitionRequestState(ctx context.Context, requestID uuid.UUID, from, to domain.RequestState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transitionErr != nil {
		return m.transitionErr
	}
	req, ok := m.requests[requestID]
	if !ok {
		return errors.New("not found")
	}
	if req.State != from {
		return ErrStateTransitionDenied
	}
	req.State = to
	m.requests[requestID] = req
	return nil
}

func (m *mockStore) GetDeviceRegistrations(ctx context.Context, userID uuid.UUID) ([]domain.DeviceRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.devices[userID], nil
}

func (m *mockStore) requestFor(t *testing.T, livestreamID string) domain.VlogRequest {
	t.Helper()
	req, err := m.GetRequestByLivestream(context.Background(), livestreamID)
	if err != nil {
		t.Fatalf("no request for livestream %s", livestreamID)
	}
	return req
}

type fakePool struct {
	mu       sync.Mutex
	capacity int
	acquired int
	next     int
	released []string
	inUse    []string
	markErr  error
}

func (p *fakePool) Acquire(ctx context.Context, userID uuid.UUID) (pool.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.acquired >= p.capacity {
		return pool.Handle{}, pool.ErrPoolExhausted
	}
	p.acquired++
	p.next++
	return pool.Handle{LivestreamID: lsID(p.next)}, nil
}

func (p *fakePool) MarkInUse(h pool.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.markErr != nil {
		return p.markErr
	}
	p.inUse = append(p.inUse, h.LivestreamID)
	return nil
}

func (p *fakePool) Release(h pool.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquired--
	p.released = append(p.released, h.LivestreamID)
}

func lsID(n int) string {
	return "ls-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(n)}).String()[:8]
}

type fakeTimeouts struct {
	mu      sync.Mutex
	armed   map[string]bool
	cleaned []string
	err     error
}

func newFakeTimeouts() *fakeTimeouts {
	return &fakeTimeouts{armed: make(map[string]bool)}
}

func (f *fakeTimeouts) Start(livestreamID string, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.armed[livestreamID] = true
	return nil
}

func (f *fakeTimeouts) Cleanup(livestreamID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, livestreamID)
	ok := f.armed[livestreamID]
	delete(f.armed, livestreamID)
	return ok
}

type mockSender struct {
	mu    sync.Mutex
	sends []sentPush
	fail  bool
}

type sentPush struct {
	platform domain.Platform
	handle   string
}

func (m *mockSender) Send(ctx context.Context, platform domain.Platform, deviceHandle string, wirePayload []byte) notification.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return notification.Result{StatusCode: 502}
	}
	m.sends = append(m.sends, sentPush{platform: platform, handle: deviceHandle})
	return notification.Result{StatusCode: 200}
}

func (m *mockSender) sent() []sentPush {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentPush(nil), m.sends...)
}

func task(userID uuid.UUID) domain.TriggerTask {
	now := time.Now().UTC()
	return domain.TriggerTask{UserID: userID, RequestedAt: now, Deadline: now.Add(3 * time.Minute)}
}

func batchOf(tasks ...domain.TriggerTask) domain.TriggerBatch {
	return domain.TriggerBatch{Minute: time.Now().UTC().Truncate(time.Minute), FiredAt: time.Now().UTC(), Tasks: tasks}
}

func newTestManager(store *mockStore, p *fakePool, timeouts *fakeTimeouts, sender *mockSender) *Manager {
	return New(Config{MaxParallel: 4}, store, p, sender).WithTimeouts(timeouts)
}

func TestDispatchBatch_PersistsArmsAndNotifies(t *testing.T) {
	user := uuid.New()
	store := newMockStore()
	store.devices[user] = []domain.DeviceRegistration{
		{UserID: user, Platform: domain.PlatformFCM, Handle: "device-1"},
	}
	p := &fakePool{capacity: 2}
	timeouts := newFakeTimeouts()
	sender := &mockSender{}

	m := newTestManager(store, p, timeouts, sender)
	m.DispatchBatch(context.Background(), batchOf(task(user)))

	if len(store.requests) != 1 {
		t.Fatalf("expected 1 persisted request, got %d", len(store.requests))
	}
	var req domain.VlogRequest
	for _, r := range store.requests {
		req = r
	}
	if req.State != domain.RequestStateRequested {
		t.Errorf("request state = %s, want requested", req.State)
	}
	if !timeouts.armed[req.LivestreamID] {
		t.Error("connect timeout not armed")
	}
	sends := sender.sent()
	if len(sends) != 1 || sends[0].handle != "device-1" {
		t.Errorf("unexpected pushes: %v", sends)
	}
}

func TestDispatchBatch_PoolExhaustedSkipsUserOnly(t *testing.T) {
	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	store := newMockStore()
	p := &fakePool{capacity: 2}
	timeouts := newFakeTimeouts()

	m := newTestManager(store, p, timeouts, &mockSender{})
	m.DispatchBatch(context.Background(), batchOf(task(users[0]), task(users[1]), task(users[2])))

	// Two users got a livestream; one was skipped without failing the batch.
	if len(store.requests) != 2 {
		t.Errorf("expected 2 requests, got %d", len(store.requests))
	}
	if len(timeouts.armed) != 2 {
		t.Errorf("expected 2 armed timers, got %d", len(timeouts.armed))
	}
}

func TestDispatchBatch_InsertFailureReleasesResource(t *testing.T) {
	user := uuid.New()
	store := newMockStore()
	store.insertErr = errors.New("disk full")
	p := &fakePool{capacity: 1}
	timeouts := newFakeTimeouts()

	m := newTestManager(store, p, timeouts, &mockSender{})
	m.DispatchBatch(context.Background(), batchOf(task(user)))

	if len(p.released) != 1 {
		t.Errorf("expected resource released on persist failure, got %v", p.released)
	}
	if len(timeouts.armed) != 0 {
		t.Error("no timer should be armed for a failed task")
	}
}

func TestDispatchBatch_ArmFailureCancelsRequest(t *testing.T) {
	user := uuid.New()
	store := newMockStore()
	p := &fakePool{capacity: 1}
	timeouts := newFakeTimeouts()
	timeouts.err = errors.New("already armed")

	m := newTestManager(store, p, timeouts, &mockSender{})
	m.DispatchBatch(context.Background(), batchOf(task(user)))

	if len(p.released) != 1 {
		t.Errorf("expected resource released, got %v", p.released)
	}
	for _, req := range store.requests {
		if req.State != domain.RequestStateCancelled {
			t.Errorf("request state = %s, want cancelled", req.State)
		}
	}
}

func TestHandleConnect_TransitionsAndDisarms(t *testing.T) {
	user := uuid.New()
	store := newMockStore()
	p := &fakePool{capacity: 1}
	timeouts := newFakeTimeouts()

	m := newTestManager(store, p, timeouts, &mockSender{})
	m.DispatchBatch(context.Background(), batchOf(task(user)))
	req := store.requestFor(t, lsID(1))

	if err := m.HandleConnect(context.Background(), req.LivestreamID); err != nil {
		t.Fatalf("HandleConnect failed: %v", err)
	}

	got := store.requestFor(t, req.LivestreamID)
	if got.State != domain.RequestStateConnected {
		t.Errorf("state = %s, want connected", got.State)
	}
	if len(timeouts.cleaned) != 1 {
		t.Error("timer was not cleaned up")
	}
	if len(p.inUse) != 1 {
		t.Error("resource was not marked in-use")
	}
}

func TestHandleConnect_AfterTimeoutRejected(t *testing.T) {
	user := uuid.New()
	store := newMockStore()
	p := &fakePool{capacity: 1}
	timeouts := newFakeTimeouts()

	m := newTestManager(store, p, timeouts, &mockSender{})
	m.DispatchBatch(context.Background(), batchOf(task(user)))
	req := store.requestFor(t, lsID(1))

	// The deadline elapsed first.
	m.HandleExpire(req.LivestreamID)

	err := m.HandleConnect(context.Background(), req.LivestreamID)
	if !errors.Is(err, ErrStateTransitionDenied) {
		t.Fatalf("expected ErrStateTransitionDenied, got %v", err)
	}
	if len(p.inUse) != 0 {
		t.Error("late connect must not mark resource in-use")
	}
}

func TestHandleConnect_UnknownLivestream(t *testing.T) {
	m := newTestManager(newMockStore(), &fakePool{capacity: 1}, newFakeTimeouts(), &mockSender{})
	err := m.HandleConnect(context.Background(), "ls-unknown")
	if !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
}

func TestHandleComplete_ReleasesResource(t *testing.T) {
	user := uuid.New()
	store := newMockStore()
	p := &fakePool{capacity: 1}
	timeouts := newFakeTimeouts()

	m := newTestManager(store, p, timeouts, &mockSender{})
	m.DispatchBatch(context.Background(), batchOf(task(user)))
	req := store.requestFor(t, lsID(1))

	if err := m.HandleConnect(context.Background(), req.LivestreamID); err != nil {
		t.Fatalf("HandleConnect failed: %v", err)
	}
	if err := m.HandleComplete(context.Background(), req.LivestreamID); err != nil {
		t.Fatalf("HandleComplete failed: %v", err)
	}

	got := store.requestFor(t, req.LivestreamID)
	if got.State != domain.RequestStateCompleted {
		t.Errorf("state = %s, want completed", got.State)
	}
	if len(p.released) != 1 {
		t.Error("resource was not released")
	}
}

func TestHandleComplete_WithoutConnectRejected(t *testing.T) {
	user := uuid.New()
	store := newMockStore()
	p := &fakePool{capacity: 1}

	m := newTestManager(store, p, newFakeTimeouts(), &mockSender{})
	m.DispatchBatch(context.Background(), batchOf(task(user)))
	req := store.requestFor(t, lsID(1))

	if err := m.HandleComplete(context.Background(), req.LivestreamID); !errors.Is(err, ErrStateTransitionDenied) {
		t.Fatalf("expected ErrStateTransitionDenied, got %v", err)
	}
}

func TestHandleExpire_TimesOutAndReleases(t *testing.T) {
	user := uuid.New()
	store := newMockStore()
	p := &fakePool{capacity: 1}
	timeouts := newFakeTimeouts()

	m := newTestManager(store, p, timeouts, &mockSender{})
	m.DispatchBatch(context.Background(), batchOf(task(user)))
	req := store.requestFor(t, lsID(1))

	m.HandleExpire(req.LivestreamID)

	got := store.requestFor(t, req.LivestreamID)
	if got.State != domain.RequestStateTimedOut {
		t.Errorf("state = %s, want timed_out", got.State)
	}
	if len(p.released) != 1 {
		t.Error("resource was not released")
	}
}

func TestHandleExpire_AfterConnectKeepsResource(t *testing.T) {
	user := uuid.New()
	store := newMockStore()
	p := &fakePool{capacity: 1}
	timeouts := newFakeTimeouts()

	m := newTestManager(store, p, timeouts, &mockSender{})
	m.DispatchBatch(context.Background(), batchOf(task(user)))
	req := store.requestFor(t, lsID(1))

	if err := m.HandleConnect(context.Background(), req.LivestreamID); err != nil {
		t.Fatalf("HandleConnect failed: %v", err)
	}
	m.HandleExpire(req.LivestreamID)

	got := store.requestFor(t, req.LivestreamID)
	if got.State != domain.RequestStateConnected {
		t.Errorf("state = %s, want connected after losing expire race", got.State)
	}
	if len(p.released) != 0 {
		t.Error("expire must not release a connected session's resource")
	}
}

func TestHandleExpire_LookupFailureLeavesResource(t *testing.T) {
	user := uuid.New()
	store := newMockStore()
	p := &fakePool{capacity: 1}
	timeouts := newFakeTimeouts()

	m := newTestManager(store, p, timeouts, &mockSender{})
	m.DispatchBatch(context.Background(), batchOf(task(user)))
	req := store.requestFor(t, lsID(1))

	// A transient storage failure hides the request state; the session may
	// have just connected, so the expire must not touch the resource.
	store.getErr = errors.New("connection reset")
	m.HandleExpire(req.LivestreamID)

	if len(p.released) != 0 {
		t.Errorf("lookup failure must not release the resource, got %v", p.released)
	}
	store.getErr = nil
	got := store.requestFor(t, req.LivestreamID)
	if got.State != domain.RequestStateRequested {
		t.Errorf("state = %s, want requested so the sweeper can retry", got.State)
	}
}

func TestNotify_UnsupportedPlatformIsolated(t *testing.T) {
	user := uuid.New()
	store := newMockStore()
	store.devices[user] = []domain.DeviceRegistration{
		{UserID: user, Platform: domain.Platform("wns"), Handle: "device-bad"},
		{UserID: user, Platform: domain.PlatformAPNS, Handle: "device-good"},
	}
	p := &fakePool{capacity: 1}
	sender := &mockSender{}

	m := newTestManager(store, p, newFakeTimeouts(), sender)
	m.DispatchBatch(context.Background(), batchOf(task(user)))

	sends := sender.sent()
	if len(sends) != 1 || sends[0].handle != "device-good" {
		t.Errorf("expected only supported platform to receive push, got %v", sends)
	}
}

type blockingBreaker struct {
	mu       sync.Mutex
	blocked  map[domain.Platform]bool
	failures int
}

func (b *blockingBreaker) Allow(p domain.Platform) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.blocked[p] {
		return errors.New("circuit open")
	}
	return nil
}

func (b *blockingBreaker) RecordSuccess(p domain.Platform) {}

func (b *blockingBreaker) RecordFailure(p domain.Platform) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
}

func TestNotify_BreakerShedsPlatform(t *testing.T) {
	user := uuid.New()
	store := newMockStore()
	store.devices[user] = []domain.DeviceRegistration{
		{UserID: user, Platform: domain.PlatformFCM, Handle: "device-fcm"},
		{UserID: user, Platform: domain.PlatformAPNS, Handle: "device-apns"},
	}
	p := &fakePool{capacity: 1}
	sender := &mockSender{}
	breaker := &blockingBreaker{blocked: map[domain.Platform]bool{domain.PlatformFCM: true}}

	m := newTestManager(store, p, newFakeTimeouts(), sender).WithBreaker(breaker)
	m.DispatchBatch(context.Background(), batchOf(task(user)))

	sends := sender.sent()
	if len(sends) != 1 || sends[0].platform != domain.PlatformAPNS {
		t.Errorf("expected only apns push, got %v", sends)
	}
}

func TestNotify_FailedPushRecordedOnBreaker(t *testing.T) {
	user := uuid.New()
	store := newMockStore()
	store.devices[user] = []domain.DeviceRegistration{
		{UserID: user, Platform: domain.PlatformFCM, Handle: "device-fcm"},
	}
	p := &fakePool{capacity: 1}
	sender := &mockSender{fail: true}
	breaker := &blockingBreaker{blocked: map[domain.Platform]bool{}}

	m := newTestManager(store, p, newFakeTimeouts(), sender).WithBreaker(breaker)
	m.DispatchBatch(context.Background(), batchOf(task(user)))

	if breaker.failures != 1 {
		t.Errorf("expected 1 recorded failure, got %d", breaker.failures)
	}
}

func TestRun_DrainsBufferedBatchesOnShutdown(t *testing.T) {
	user := uuid.New()
	store := newMockStore()
	p := &fakePool{capacity: 4}
	timeouts := newFakeTimeouts()

	m := newTestManager(store, p, timeouts, &mockSender{})

	ch := make(chan domain.TriggerBatch, 4)
	ch <- batchOf(task(user))
	ch <- batchOf(task(uuid.New()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		m.Run(ctx, ch)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if len(store.requests) != 2 {
		t.Errorf("expected both buffered batches drained, got %d requests", len(store.requests))
	}
}
