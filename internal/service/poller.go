// internal/service/poller.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/campaign-notifier/internal/errors"
	"github.com/unclebandit/campaign-notifier/internal/metrics"
	"github.com/unclebandit/campaign-notifier/internal/model"
	"github.com/unclebandit/campaign-notifier/internal/queue"
	"github.com/unclebandit/campaign-notifier/internal/repository"
)

// DefaultInterval is the delay between poll cycles.
const DefaultInterval = 15 * time.Second

// deliveryTimeout bounds an insert+notify pair that outlives cancellation.
const deliveryTimeout = 30 * time.Second

// CampaignAPI is the campaign API as seen by the poller.
type CampaignAPI interface {
	TestConnection(ctx context.Context, spaceID int) (string, error)
	FetchSpaceCampaigns(ctx context.Context, spaceID int) (*model.SpaceCampaigns, error)
	FetchCampaignDetails(ctx context.Context, campaignID string) (*model.Campaign, error)
}

// Notifier announces a new campaign.
type Notifier interface {
	Notify(ctx context.Context, campaignName, campaignID string) error
}

// StoreOpener opens the dedupe store. The poller owns the returned handle.
type StoreOpener func(ctx context.Context) (repository.SeenCampaignRepositoryInterface, error)

// PollerConfig holds the static settings of a Poller.
type PollerConfig struct {
	SpaceID    int
	CampaignID string // single-campaign mode when set
	Interval   time.Duration
	HasToken   bool
}

// SingleCampaign reports whether one fixed campaign is polled instead of a space.
func (c PollerConfig) SingleCampaign() bool {
	return c.CampaignID != ""
}

// Status is a snapshot of the poller for the status endpoint.
type Status struct {
	Mode          string    `json:"mode"`
	Running       bool      `json:"running"`
	Cycles        int       `json:"cycles"`
	Discovered    int       `json:"discovered"`
	LastPollAt    time.Time `json:"last_poll_at,omitempty"`
	LastSuccessAt time.Time `json:"last_success_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// Poller runs the poll, dedupe and notify loop.
type Poller struct {
	API       CampaignAPI
	OpenStore StoreOpener
	Notifier  Notifier
	// Queue receives a model.CampaignDiscovered per new campaign when set.
	Queue queue.Queue
	// Topic overrides queue.TopicCampaignDiscovered.
	Topic string
	// Link builds the campaign deep link for queued events.
	Link func(campaignID string) string
	// Ready delays the first cycle until it is closed.
	Ready <-chan struct{}

	cfg   PollerConfig
	log   logrus.FieldLogger
	after func(time.Duration) <-chan time.Time

	mu     sync.RWMutex
	status Status
	store  repository.SeenCampaignRepositoryInterface
}

// NewPoller creates a poller. Optional collaborators are set on the fields.
func NewPoller(cfg PollerConfig, api CampaignAPI, openStore StoreOpener, notifier Notifier, log logrus.FieldLogger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	mode := "space"
	if cfg.SingleCampaign() {
		mode = "campaign"
	}
	return &Poller{
		API:       api,
		OpenStore: openStore,
		Notifier:  notifier,
		cfg:       cfg,
		log:       log,
		after:     time.After,
		status:    Status{Mode: mode},
	}
}

// Run polls until ctx is done. Errors wrapping appErrors.ErrStartupFatal mean
// the loop could not start and must not be restarted; otherwise Run returns
// ctx.Err(). The store is closed before Run returns.
func (p *Poller) Run(ctx context.Context) error {
	if p.Ready != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.Ready:
		}
	}

	if !p.cfg.HasToken {
		p.log.Error("⚠️ Please provide a valid campaign API access token")
		return appErrors.StartupFatal(errors.New("campaign API access token is not configured"))
	}

	store, err := p.OpenStore(ctx)
	if err != nil {
		p.log.WithError(err).Error("❌ Aborting due to database initialization failure")
		return appErrors.StartupFatal(err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			p.log.WithError(err).Warn("closing database")
			return
		}
		p.log.Info("✅ Database connection closed")
	}()
	p.log.Info("✅ Connected to database")

	p.attach(store)
	defer p.attach(nil)

	last := time.Now()
	for {
		now := time.Now()
		p.log.WithFields(logrus.Fields{
			"mode":            p.Status().Mode,
			"since_last_poll": now.Sub(last).Round(10 * time.Millisecond).String(),
		}).Info("📅 Polling")
		last = now

		if err := p.RunCycle(ctx, store); err != nil && ctx.Err() == nil {
			p.log.WithError(err).Error("❌ Polling error")
		}

		select {
		case <-ctx.Done():
			p.log.Info("✅ Polling task cancelled")
			return ctx.Err()
		case <-p.after(p.cfg.Interval):
		}
	}
}

// RunCycle performs one self-test, fetch and dedupe pass.
func (p *Poller) RunCycle(ctx context.Context, store repository.SeenCampaignRepositoryInterface) error {
	metrics.PollCycles.Inc()
	p.cycleStarted()

	spaceName, err := p.API.TestConnection(ctx, p.cfg.SpaceID)
	if err != nil {
		metrics.PollCycleErrors.WithLabelValues("self_test").Inc()
		err = fmt.Errorf("api self-test: %w", err)
		p.cycleFinished(err)
		return err
	}
	p.log.WithField("space", spaceName).Debug("✅ API test successful")

	if p.cfg.SingleCampaign() {
		err = p.pollCampaign(ctx, store)
	} else {
		err = p.pollSpace(ctx, store)
	}
	if err != nil {
		metrics.PollCycleErrors.WithLabelValues("fetch").Inc()
	}
	p.cycleFinished(err)
	return err
}

func (p *Poller) pollSpace(ctx context.Context, store repository.SeenCampaignRepositoryInterface) error {
	p.log.WithField("space_id", p.cfg.SpaceID).Debug("🔍 Fetching campaigns for space")
	space, err := p.API.FetchSpaceCampaigns(ctx, p.cfg.SpaceID)
	if err != nil {
		return err
	}
	if space == nil {
		return nil
	}
	if len(space.Campaigns) == 0 {
		p.log.WithField("space_id", p.cfg.SpaceID).Info("No campaigns found")
		return nil
	}

	metrics.CampaignsFetched.Add(float64(len(space.Campaigns)))
	p.log.WithFields(logrus.Fields{
		"space":     space.SpaceName,
		"space_id":  space.SpaceID,
		"campaigns": len(space.Campaigns),
	}).Info("📦 Space fetched")

	for _, c := range space.Campaigns {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.process(ctx, store, c)
	}
	return nil
}

func (p *Poller) pollCampaign(ctx context.Context, store repository.SeenCampaignRepositoryInterface) error {
	p.log.WithField("campaign_id", p.cfg.CampaignID).Debug("🔎 Fetching campaign details")
	c, err := p.API.FetchCampaignDetails(ctx, p.cfg.CampaignID)
	if err != nil {
		return err
	}
	if c == nil {
		return nil
	}
	if c.ID == "" {
		c.ID = p.cfg.CampaignID
	}
	metrics.CampaignsFetched.Inc()

	status := c.Status
	if status == "" {
		status = "No status found"
	}
	tags := strings.Join(c.Tags, ", ")
	if tags == "" {
		tags = "No tags found"
	}
	p.log.WithFields(logrus.Fields{
		"campaign_id": c.ID,
		"name":        c.Name,
		"status":      status,
		"tags":        tags,
	}).Info("📍 Campaign")

	p.process(ctx, store, *c)
	return nil
}

// process records c and announces it if it was not seen before. Store and
// notifier failures are logged and swallowed. It reports whether c was new.
func (p *Poller) process(ctx context.Context, store repository.SeenCampaignRepositoryInterface, c model.Campaign) bool {
	log := p.log.WithField("campaign_id", c.ID)

	seen, err := store.Exists(ctx, c.ID)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("exists").Inc()
		log.WithError(err).Error("❌ Error checking campaign ID")
		return false
	}
	if seen {
		return false
	}

	// once the insert starts the pair completes, even on shutdown
	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()

	if err := store.Insert(work, c.ID); err != nil {
		if errors.Is(err, appErrors.ErrAlreadySeen) {
			log.Debug("campaign recorded concurrently, skipping notification")
			return false
		}
		metrics.StoreErrors.WithLabelValues("insert").Inc()
		log.WithError(err).Error("❌ Error inserting campaign ID")
		return false
	}

	metrics.CampaignsDiscovered.Inc()
	p.discovered()
	log.WithFields(logrus.Fields{"name": c.Name, "status": c.Status}).Info("New campaign found")

	if err := p.Notifier.Notify(work, c.Name, c.ID); err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
	} else {
		metrics.Notifications.WithLabelValues("sent").Inc()
	}

	p.publish(c)
	return true
}

func (p *Poller) publish(c model.Campaign) {
	if p.Queue == nil {
		return
	}
	event := model.CampaignDiscovered{
		CampaignID:   c.ID,
		Name:         c.Name,
		Status:       c.Status,
		DiscoveredAt: time.Now().UTC(),
	}
	if p.Link != nil {
		event.Link = p.Link(c.ID)
	}
	topic := p.Topic
	if topic == "" {
		topic = queue.TopicCampaignDiscovered
	}
	if err := p.Queue.Publish(topic, event); err != nil {
		metrics.EventsPublished.WithLabelValues("failed").Inc()
		p.log.WithError(err).WithField("campaign_id", c.ID).Warn("⚠️ failed to publish discovery event")
		return
	}
	metrics.EventsPublished.WithLabelValues("published").Inc()
}

// Status returns a snapshot of the loop state.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// SeenCount returns the number of stored campaign ids while the loop runs.
func (p *Poller) SeenCount(ctx context.Context) (int, error) {
	store, err := p.openStore()
	if err != nil {
		return 0, err
	}
	return store.Count(ctx)
}

// Seen looks up a stored campaign id while the loop runs. It returns nil
// when the id was never recorded.
func (p *Poller) Seen(ctx context.Context, campaignID string) (*model.SeenCampaign, error) {
	store, err := p.openStore()
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, campaignID)
}

func (p *Poller) openStore() (repository.SeenCampaignRepositoryInterface, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.store == nil {
		return nil, appErrors.ErrStoreUnavailable
	}
	return p.store, nil
}

// attach publishes the store handle owned by Run; nil detaches it.
func (p *Poller) attach(store repository.SeenCampaignRepositoryInterface) {
	p.mu.Lock()
	p.store = store
	p.status.Running = store != nil
	p.mu.Unlock()
}

func (p *Poller) cycleStarted() {
	p.mu.Lock()
	p.status.Cycles++
	p.status.LastPollAt = time.Now().UTC()
	p.mu.Unlock()
}

func (p *Poller) cycleFinished(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.status.LastError = err.Error()
		return
	}
	p.status.LastError = ""
	p.status.LastSuccessAt = time.Now().UTC()
}

func (p *Poller) discovered() {
	p.mu.Lock()
	p.status.Discovered++
	p.mu.Unlock()
}
