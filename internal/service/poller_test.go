package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	appErrors "github.com/unclebandit/campaign-notifier/internal/errors"
	"github.com/unclebandit/campaign-notifier/internal/logging"
	"github.com/unclebandit/campaign-notifier/internal/model"
	"github.com/unclebandit/campaign-notifier/internal/queue"
	"github.com/unclebandit/campaign-notifier/internal/repository"
)

// MockAPI serves a fixed set of campaigns
type MockAPI struct {
	mu          sync.Mutex
	selfTestErr error
	fetchErr    error
	space       *model.SpaceCampaigns
	details     map[string]*model.Campaign
	fetches     int
}

func (m *MockAPI) TestConnection(ctx context.Context, spaceID int) (string, error) {
	if m.selfTestErr != nil {
		return "", m.selfTestErr
	}
	return "Genome", nil
}

func (m *MockAPI) FetchSpaceCampaigns(ctx context.Context, spaceID int) (*model.SpaceCampaigns, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.space, nil
}

func (m *MockAPI) FetchCampaignDetails(ctx context.Context, campaignID string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.details[campaignID], nil
}

func (m *MockAPI) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

// MockStore keeps seen ids in memory
type MockStore struct {
	mu         sync.Mutex
	seen       map[string]bool
	inserted   []string
	insertErrs map[string]error
	existsErr  error
	closed     bool
}

func newMockStore(ids ...string) *MockStore {
	s := &MockStore{seen: map[string]bool{}, insertErrs: map[string]error{}}
	for _, id := range ids {
		s.seen[id] = true
	}
	return s
}

func (m *MockStore) Exists(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	return m.seen[id], nil
}

func (m *MockStore) Insert(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.insertErrs[id]; err != nil {
		return err
	}
	if m.seen[id] {
		return appErrors.ErrAlreadySeen
	}
	m.seen[id] = true
	m.inserted = append(m.inserted, id)
	return nil
}

func (m *MockStore) Get(ctx context.Context, id string) (*model.SeenCampaign, error) {
	return nil, nil
}

func (m *MockStore) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen), nil
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockStore) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockNotifier records notified campaign ids
type MockNotifier struct {
	mu       sync.Mutex
	notified []string
	failFor  map[string]bool
}

func (m *MockNotifier) Notify(ctx context.Context, name, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[id] {
		return errors.New("channel not found")
	}
	m.notified = append(m.notified, id)
	return nil
}

func (m *MockNotifier) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.notified...)
}

func space(ids ...string) *model.SpaceCampaigns {
	s := &model.SpaceCampaigns{SpaceID: "42", SpaceName: "Genome"}
	for _, id := range ids {
		s.Campaigns = append(s.Campaigns, model.Campaign{ID: id, Name: "Quest " + id, Status: "Active"})
	}
	return s
}

func newTestPoller(api CampaignAPI, store *MockStore, n Notifier, cfg PollerConfig) *Poller {
	open := func(context.Context) (repository.SeenCampaignRepositoryInterface, error) { return store, nil }
	return NewPoller(cfg, api, open, n, logging.Discard())
}

func TestCycleNotifiesOnlyNewCampaigns(t *testing.T) {
	api := &MockAPI{space: space("A", "B", "C")}
	store := newMockStore("A", "B")
	notifier := &MockNotifier{}
	p := newTestPoller(api, store, notifier, PollerConfig{SpaceID: 42, HasToken: true})

	require.NoError(t, p.RunCycle(context.Background(), store))

	assert.Equal(t, []string{"C"}, store.inserted)
	assert.Equal(t, []string{"C"}, notifier.ids())
	assert.Equal(t, 1, p.Status().Discovered)
}

func TestLaterCyclesNeverRenotify(t *testing.T) {
	api := &MockAPI{space: space("A", "B")}
	store := newMockStore()
	notifier := &MockNotifier{}
	p := newTestPoller(api, store, notifier, PollerConfig{SpaceID: 42, HasToken: true})

	for i := 0; i < 3; i++ {
		require.NoError(t, p.RunCycle(context.Background(), store))
	}
	api.space = space("A", "B", "C")
	require.NoError(t, p.RunCycle(context.Background(), store))

	assert.Equal(t, []string{"A", "B", "C"}, notifier.ids())
	assert.Equal(t, 4, p.Status().Cycles)
}

func TestInsertFailureSkipsToNextCampaign(t *testing.T) {
	api := &MockAPI{space: space("A", "B", "C")}
	store := newMockStore()
	store.insertErrs["B"] = errors.New("duplicate key value violates unique constraint")
	notifier := &MockNotifier{}
	p := newTestPoller(api, store, notifier, PollerConfig{SpaceID: 42, HasToken: true})

	require.NoError(t, p.RunCycle(context.Background(), store))

	assert.Equal(t, []string{"A", "C"}, store.inserted)
	assert.Equal(t, []string{"A", "C"}, notifier.ids())
}

func TestConcurrentInsertIsNotNotified(t *testing.T) {
	api := &MockAPI{space: space("A")}
	store := newMockStore()
	store.insertErrs["A"] = appErrors.ErrAlreadySeen
	notifier := &MockNotifier{}
	p := newTestPoller(api, store, notifier, PollerConfig{SpaceID: 42, HasToken: true})

	require.NoError(t, p.RunCycle(context.Background(), store))
	assert.Empty(t, notifier.ids())
}

func TestExistsFailureSkipsCampaign(t *testing.T) {
	api := &MockAPI{space: space("A")}
	store := newMockStore()
	store.existsErr = errors.New("connection reset")
	notifier := &MockNotifier{}
	p := newTestPoller(api, store, notifier, PollerConfig{SpaceID: 42, HasToken: true})

	require.NoError(t, p.RunCycle(context.Background(), store))
	assert.Empty(t, store.inserted)
	assert.Empty(t, notifier.ids())
}

func TestNotifyFailureDoesNotStopCycle(t *testing.T) {
	api := &MockAPI{space: space("A", "B")}
	store := newMockStore()
	notifier := &MockNotifier{failFor: map[string]bool{"A": true}}
	p := newTestPoller(api, store, notifier, PollerConfig{SpaceID: 42, HasToken: true})

	require.NoError(t, p.RunCycle(context.Background(), store))
	assert.Equal(t, []string{"A", "B"}, store.inserted)
	assert.Equal(t, []string{"B"}, notifier.ids())
}

func TestSelfTestFailureAbortsCycle(t *testing.T) {
	api := &MockAPI{space: space("A"), selfTestErr: appErrors.NewAPIError("TestConnection", 503, "down")}
	store := newMockStore()
	notifier := &MockNotifier{}
	p := newTestPoller(api, store, notifier, PollerConfig{SpaceID: 42, HasToken: true})

	err := p.RunCycle(context.Background(), store)
	require.Error(t, err)
	assert.Zero(t, api.fetchCount())
	assert.Empty(t, store.inserted)
	assert.Contains(t, p.Status().LastError, "503")

	// the next cycle resumes normally
	api.selfTestErr = nil
	require.NoError(t, p.RunCycle(context.Background(), store))
	assert.Equal(t, []string{"A"}, notifier.ids())
	assert.Empty(t, p.Status().LastError)
}

func TestSingleCampaignMode(t *testing.T) {
	api := &MockAPI{details: map[string]*model.Campaign{
		"GC1": {ID: "GC1", Name: "Launch", Status: "Active", Tags: []string{"nft"}},
	}}
	store := newMockStore()
	notifier := &MockNotifier{}
	p := newTestPoller(api, store, notifier, PollerConfig{SpaceID: 42, CampaignID: "GC1", HasToken: true})

	require.NoError(t, p.RunCycle(context.Background(), store))
	require.NoError(t, p.RunCycle(context.Background(), store))
	assert.Equal(t, []string{"GC1"}, notifier.ids())
	assert.Equal(t, "campaign", p.Status().Mode)
}

func TestSingleCampaignDisappears(t *testing.T) {
	api := &MockAPI{details: map[string]*model.Campaign{}}
	store := newMockStore()
	notifier := &MockNotifier{}
	p := newTestPoller(api, store, notifier, PollerConfig{SpaceID: 42, CampaignID: "GCgone", HasToken: true})

	require.NoError(t, p.RunCycle(context.Background(), store))
	assert.Empty(t, store.inserted)
	assert.Empty(t, notifier.ids())
}

func TestMissingSpaceIsSkipped(t *testing.T) {
	api := &MockAPI{}
	store := newMockStore()
	p := newTestPoller(api, store, &MockNotifier{}, PollerConfig{SpaceID: 42, HasToken: true})

	require.NoError(t, p.RunCycle(context.Background(), store))
	assert.Empty(t, store.inserted)
}

func TestDiscoveryEventsArePublished(t *testing.T) {
	api := &MockAPI{space: space("A")}
	store := newMockStore()
	p := newTestPoller(api, store, &MockNotifier{}, PollerConfig{SpaceID: 42, HasToken: true})

	q := queue.NewInMemoryQueue(logging.Discard())
	events := make(chan model.CampaignDiscovered, 1)
	require.NoError(t, q.Subscribe(queue.TopicCampaignDiscovered, func(payload any) error {
		events <- payload.(model.CampaignDiscovered)
		return nil
	}))
	p.Queue = q
	p.Link = func(id string) string { return "https://example.com/" + id }

	require.NoError(t, p.RunCycle(context.Background(), store))
	q.Wait()

	ev := <-events
	assert.Equal(t, "A", ev.CampaignID)
	assert.Equal(t, "https://example.com/A", ev.Link)
}

func TestRunStopsOnCancelAndClosesStore(t *testing.T) {
	defer goleak.VerifyNone(t)

	api := &MockAPI{space: space("A")}
	store := newMockStore()
	notifier := &MockNotifier{}
	p := newTestPoller(api, store, notifier, PollerConfig{SpaceID: 42, HasToken: true})

	sleeps := make(chan time.Duration, 1)
	p.after = func(d time.Duration) <-chan time.Time {
		sleeps <- d
		return nil // never fires
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Equal(t, DefaultInterval, <-sleeps)
	assert.Equal(t, []string{"A"}, notifier.ids())
	assert.True(t, p.Status().Running)
	n, err := p.SeenCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.True(t, store.isClosed())
	assert.False(t, p.Status().Running)

	_, err = p.SeenCount(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrStoreUnavailable)
}

func TestRunKeepsPollingAfterErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	api := &MockAPI{space: space("A"), fetchErr: errors.New("timeout")}
	store := newMockStore()
	notifier := &MockNotifier{}
	p := newTestPoller(api, store, notifier, PollerConfig{SpaceID: 42, HasToken: true, Interval: time.Minute})

	ticks := make(chan time.Time)
	sleeps := make(chan struct{}, 3)
	p.after = func(time.Duration) <-chan time.Time {
		sleeps <- struct{}{}
		return ticks
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	<-sleeps
	assert.Empty(t, notifier.ids())

	api.mu.Lock()
	api.fetchErr = nil
	api.mu.Unlock()
	ticks <- time.Now()

	<-sleeps
	assert.Equal(t, []string{"A"}, notifier.ids())

	cancel()
	<-done
}

func TestRunWaitsForReady(t *testing.T) {
	defer goleak.VerifyNone(t)

	api := &MockAPI{space: space("A")}
	store := newMockStore()
	p := newTestPoller(api, store, &MockNotifier{}, PollerConfig{SpaceID: 42, HasToken: true})
	p.Ready = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, api.fetchCount())
}

func TestRunStartupFailures(t *testing.T) {
	t.Run("store unavailable", func(t *testing.T) {
		open := func(context.Context) (repository.SeenCampaignRepositoryInterface, error) {
			return nil, errors.New("connection refused")
		}
		p := NewPoller(PollerConfig{SpaceID: 42, HasToken: true}, &MockAPI{}, open, &MockNotifier{}, logging.Discard())

		err := p.Run(context.Background())
		assert.ErrorIs(t, err, appErrors.ErrStartupFatal)
	})

	t.Run("missing token", func(t *testing.T) {
		store := newMockStore()
		p := newTestPoller(&MockAPI{}, store, &MockNotifier{}, PollerConfig{SpaceID: 42})

		err := p.Run(context.Background())
		assert.ErrorIs(t, err, appErrors.ErrStartupFatal)
		assert.False(t, store.isClosed())
	})
}
