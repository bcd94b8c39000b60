// Package poller schedules the periodic fetch cycle: authenticate, pull
// students and rides, derive route windows, persist refreshed tokens, and
// hand the result to whoever is listening. It is the host-side counterpart
// of the API client; the client never polls on its own.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/grimsteel/smarttag-go/internal/config"
	"github.com/grimsteel/smarttag-go/routewindow"
	"github.com/grimsteel/smarttag-go/smarttag"
)

// Store persists the credential pair across restarts.
type Store interface {
	SaveCredentials(smarttag.Credentials) error
	LoadCredentials() (smarttag.Credentials, bool, error)
	ClearCredentials() error
}

// Sink receives each successful snapshot.
type Sink interface {
	Publish(ctx context.Context, snap Snapshot) error
}

// StudentData is one student's slice of a snapshot.
type StudentData struct {
	Student smarttag.Student          `json:"student"`
	Rides   []smarttag.Ride           `json:"rides"`
	Windows []routewindow.RouteWindow `json:"windows"`
}

// Snapshot is the complete result of one poll cycle.
type Snapshot struct {
	TakenAt  time.Time     `json:"takenAt"`
	Students []StudentData `json:"students"`
}

// Poller drives the fetch cycle on a fixed interval.
type Poller struct {
	client    *smarttag.Client
	store     Store
	settings  config.Settings
	email     string
	password  string
	interval  time.Duration
	rideLimit int
	sink      Sink
	metrics   *Collector
	nowTime   func() time.Time

	mu     sync.RWMutex
	latest *Snapshot
}

// Option configures a Poller.
type Option func(*Poller)

// WithSink delivers each snapshot to sink after a successful poll.
func WithSink(sink Sink) Option {
	return func(p *Poller) { p.sink = sink }
}

// WithMetrics records poll outcomes on the collector.
func WithMetrics(m *Collector) Option {
	return func(p *Poller) { p.metrics = m }
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(p *Poller) { p.nowTime = nowFunc }
}

// New creates a Poller. The client must be used by this poller exclusively;
// it is not safe for concurrent mutation.
func New(client *smarttag.Client, store Store, cfg *config.Config, options ...Option) (*Poller, error) {
	if client == nil {
		return nil, errors.New("[poller.New] client is required")
	}
	if store == nil {
		return nil, errors.New("[poller.New] store is required")
	}
	if cfg == nil {
		return nil, errors.New("[poller.New] config is required")
	}

	p := &Poller{
		client:    client,
		store:     store,
		settings:  cfg.Settings,
		email:     cfg.Email,
		password:  cfg.Password,
		interval:  cfg.PollInterval,
		rideLimit: cfg.RideLimit,
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// Latest returns the most recent snapshot, if any poll has succeeded yet.
func (p *Poller) Latest() (Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return Snapshot{}, false
	}
	return *p.latest, true
}

// PollNow runs a single poll cycle outside the schedule.
func (p *Poller) PollNow(ctx context.Context) {
	p.pollOnce(ctx)
}

// Run polls immediately and then on every interval tick until ctx is
// cancelled. Failures are logged and the next tick tries again; only ctx
// cancellation stops the loop.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce runs one full cycle. An expired session gets exactly one full
// re-login before the error is given up on for this cycle.
func (p *Poller) pollOnce(ctx context.Context) {
	runID := uuid.New().String()
	logger := log.With().Str("run_id", runID).Logger()
	start := p.nowTime()

	if p.metrics != nil {
		p.metrics.PollsTotal.Inc()
	}

	if err := p.ensureAuthenticated(ctx); err != nil {
		p.recordError(logger, err)
		return
	}
	p.observeTokenExpiry(logger)

	snap, err := p.fetch(ctx)
	if errors.Is(err, smarttag.ErrAuth) {
		// The refresh token died mid-session. Start over with a clean login.
		logger.Warn().Err(err).Msg("session expired, re-logging in")
		if p.metrics != nil {
			p.metrics.Relogins.Inc()
		}
		if err := p.store.ClearCredentials(); err != nil {
			logger.Err(err).Msg("failed to clear stored credentials")
		}
		if err = p.login(ctx); err == nil {
			snap, err = p.fetch(ctx)
		}
	}
	if err != nil {
		p.recordError(logger, err)
		return
	}

	p.persistCredentials(logger)

	p.mu.Lock()
	p.latest = &snap
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.LastSuccess.Set(float64(snap.TakenAt.Unix()))
		p.metrics.StudentsTracked.Set(float64(len(snap.Students)))
		p.metrics.PollDuration.Observe(p.nowTime().Sub(start).Seconds())
	}
	logger.Info().
		Int("students", len(snap.Students)).
		Dur("elapsed", p.nowTime().Sub(start)).
		Msg("poll complete")

	if p.sink != nil {
		if err := p.sink.Publish(ctx, snap); err != nil {
			if p.metrics != nil {
				p.metrics.PublishErrs.Inc()
			}
			logger.Err(err).Msg("failed to publish snapshot")
		} else if p.metrics != nil {
			p.metrics.Published.Inc()
		}
	}
}

// ensureAuthenticated restores persisted tokens on first use and falls back
// to a fresh login when nothing usable is stored.
func (p *Poller) ensureAuthenticated(ctx context.Context) error {
	if p.client.Credentials().Authenticated() {
		return nil
	}

	creds, ok, err := p.store.LoadCredentials()
	if err != nil {
		log.Err(err).Msg("failed to load stored credentials")
	}
	if ok && creds.Authenticated() {
		p.client.SetCredentials(creds)
		return nil
	}
	return p.login(ctx)
}

func (p *Poller) login(ctx context.Context) error {
	if err := p.client.Login(ctx, p.email, p.password); err != nil {
		return err
	}
	if err := p.store.SaveCredentials(p.client.Credentials()); err != nil {
		log.Err(err).Msg("failed to persist credentials after login")
	}
	return nil
}

// fetch pulls students and rides and derives the route windows for every
// tracked student.
func (p *Poller) fetch(ctx context.Context) (Snapshot, error) {
	students, err := p.client.GetStudents(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{TakenAt: p.nowTime()}
	for _, student := range students {
		tracked, routes := p.settings.Selected(student.ExternalID)
		if !tracked {
			continue
		}

		rides, err := p.client.GetRides(ctx, student.ID, p.rideLimit)
		if err != nil {
			return Snapshot{}, err
		}

		windows := routewindow.Compute(rides)
		if len(routes) > 0 {
			windows = filterWindows(windows, routes)
		}

		snap.Students = append(snap.Students, StudentData{
			Student: student,
			Rides:   rides,
			Windows: windows,
		})
	}
	return snap, nil
}

// persistCredentials saves the token pair when the cycle rotated it.
func (p *Poller) persistCredentials(logger zerolog.Logger) {
	if err := p.store.SaveCredentials(p.client.Credentials()); err != nil {
		logger.Err(err).Msg("failed to persist rotated credentials")
	}
}

func (p *Poller) observeTokenExpiry(logger zerolog.Logger) {
	expiry, err := p.client.Credentials().AccessTokenExpiry()
	if err != nil || expiry.IsZero() {
		return
	}
	if p.metrics != nil {
		p.metrics.TokenExpiry.Set(float64(expiry.Unix()))
	}
	if expiry.Before(p.nowTime()) {
		logger.Debug().Time("expiry", expiry).Msg("access token already expired; refresh will trigger on first request")
	}
}

func (p *Poller) recordError(logger zerolog.Logger, err error) {
	kind := errKind(err)
	if p.metrics != nil {
		p.metrics.PollErrors.WithLabelValues(kind).Inc()
	}
	switch kind {
	case "network":
		// Transient; the next tick retries.
		logger.Warn().Err(err).Msg("poll failed with network error")
	case "auth":
		logger.Error().Err(err).Msg("poll failed with auth error; check credentials")
	default:
		logger.Error().Err(err).Msg("poll failed with unclassified api error")
	}
}

func errKind(err error) string {
	switch {
	case errors.Is(err, smarttag.ErrAuth):
		return "auth"
	case errors.Is(err, smarttag.ErrNetwork):
		return "network"
	default:
		return "api"
	}
}

func filterWindows(windows []routewindow.RouteWindow, routes []int64) []routewindow.RouteWindow {
	keep := make(map[int64]bool, len(routes))
	for _, id := range routes {
		keep[id] = true
	}
	filtered := windows[:0]
	for _, w := range windows {
		if keep[w.RouteID] {
			filtered = append(filtered, w)
		}
	}
	return filtered
}
