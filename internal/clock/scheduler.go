package clock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"bibleclock/internal/fetch"
	appLog "bibleclock/internal/log"
	"bibleclock/internal/model"
	"bibleclock/internal/resolve"
)

// State is the refresh cycle's current phase, exposed on the status API.
type State int32

const (
	StateIdle State = iota
	StateResolving
	StateFetching
	StatePublishing
)

var stateNames = map[State]string{
	StateIdle:       "idle",
	StateResolving:  "resolving",
	StateFetching:   "fetching",
	StatePublishing: "publishing",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "idle"
}

// Publisher receives each completed screen of content. Publishers run in
// order; one failing does not keep the others from running.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, content model.DisplayContent) error
}

// Schedules holds the cron expressions driving the appliance. Zero fields
// keep the defaults.
type Schedules struct {
	// Tick produces a new screen. Once a minute keeps chapter:verse in step
	// with the wall clock.
	Tick string
	// FullRefresh bypasses the cache so stale text heals within the hour.
	FullRefresh string
	// Health logs a periodic health line.
	Health string
	// Maintenance purges the cache and resets daily counters overnight.
	Maintenance string
}

func defaultSchedules() Schedules {
	return Schedules{
		// The hourly full refresh already redraws at minute 0; a tick
		// there would refresh the panel twice back to back.
		Tick:        "1-59 * * * *",
		FullRefresh: "0 * * * *",
		Health:      "*/5 * * * *",
		Maintenance: "0 3 * * *",
	}
}

// defaultFetchBudget caps one cycle's fetch work. It stays under the minute
// tick so a slow remote cannot stack cycles.
const defaultFetchBudget = 45 * time.Second

// Scheduler drives the refresh loop: each tick resolves the current moment
// to a reference, fetches its text and hands the content to every publisher.
type Scheduler struct {
	controller *Controller
	resolver   *resolve.Resolver
	fetcher    *fetch.Fetcher
	publishers []Publisher

	schedules   Schedules
	fetchBudget time.Duration
	healthKV    func(ctx context.Context) []any
	now         func() time.Time

	cron    *cron.Cron
	force   chan struct{}
	state   atomic.Int32
	cycleMu sync.Mutex

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option adjusts a Scheduler.
type Option func(*Scheduler)

// WithSchedules overrides the cron expressions; zero fields keep defaults.
func WithSchedules(sc Schedules) Option {
	return func(s *Scheduler) {
		if sc.Tick != "" {
			s.schedules.Tick = sc.Tick
		}
		if sc.FullRefresh != "" {
			s.schedules.FullRefresh = sc.FullRefresh
		}
		if sc.Health != "" {
			s.schedules.Health = sc.Health
		}
		if sc.Maintenance != "" {
			s.schedules.Maintenance = sc.Maintenance
		}
	}
}

// WithFetchBudget caps the per-cycle fetch time.
func WithFetchBudget(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.fetchBudget = d
		}
	}
}

// WithHealthKV appends extra key-value pairs (battery state, disk space) to
// the periodic health line.
func WithHealthKV(fn func(ctx context.Context) []any) Option {
	return func(s *Scheduler) { s.healthKV = fn }
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler wires the refresh loop. Publishers are invoked in the order
// given.
func NewScheduler(ctrl *Controller, res *resolve.Resolver, f *fetch.Fetcher, pubs []Publisher, opts ...Option) *Scheduler {
	s := &Scheduler{
		controller:  ctrl,
		resolver:    res,
		fetcher:     f,
		publishers:  pubs,
		schedules:   defaultSchedules(),
		fetchBudget: defaultFetchBudget,
		now:         time.Now,
		cron:        cron.New(),
		force:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the cron jobs, runs the first cycle immediately and
// returns. The scheduler stops when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runCtx, s.cancel = context.WithCancel(ctx)

	jobs := []struct {
		spec string
		run  func()
	}{
		{s.schedules.Tick, func() { s.cycle(s.runCtx, false) }},
		{s.schedules.FullRefresh, func() { s.cycle(s.runCtx, true) }},
		{s.schedules.Health, func() { s.healthCheck(s.runCtx) }},
		{s.schedules.Maintenance, s.maintenance},
	}
	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.spec, job.run); err != nil {
			s.cancel()
			return fmt.Errorf("clock: bad cron spec %q: %w", job.spec, err)
		}
	}

	s.wg.Add(1)
	go s.forceLoop(s.runCtx)

	s.cron.Start()

	// First screen right away instead of waiting for the minute boundary.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.cycle(s.runCtx, false)
	}()

	appLog.Info("scheduler started",
		"tick", s.schedules.Tick,
		"full_refresh", s.schedules.FullRefresh,
		"health", s.schedules.Health,
		"maintenance", s.schedules.Maintenance,
		"publishers", len(s.publishers),
	)
	return nil
}

// Stop halts the cron jobs and waits for a cycle in flight to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
	appLog.Info("scheduler stopped")
}

// ForceRefresh requests an immediate out-of-band cycle. Requests arriving
// while one is already pending coalesce into that single run.
func (s *Scheduler) ForceRefresh() {
	select {
	case s.force <- struct{}{}:
	default:
		appLog.Debug("force refresh coalesced")
	}
}

// RunOnce performs a single synchronous cycle, for one-shot invocations.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.cycle(ctx, false)
}

// State reports the current cycle phase.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Scheduler) forceLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.force:
			s.cycle(ctx, true)
		}
	}
}

// cycle runs one Resolving -> Fetching -> Publishing pass. Regular ticks
// that land while a cycle is still in flight are skipped; forced refreshes
// wait for the running cycle and then run.
func (s *Scheduler) cycle(ctx context.Context, forced bool) {
	if forced {
		s.cycleMu.Lock()
		// Force requests that queued while this run waited for the lock
		// are satisfied by the run about to happen.
		select {
		case <-s.force:
		default:
		}
	} else if !s.cycleMu.TryLock() {
		appLog.Debug("tick skipped, cycle in progress")
		return
	}
	defer s.cycleMu.Unlock()

	if ctx.Err() != nil {
		return
	}

	defer s.setState(StateIdle)
	defer func() {
		if r := recover(); r != nil {
			appLog.Error("refresh cycle panic", fmt.Errorf("%v", r), "forced", forced)
		}
	}()

	now := s.now()
	set := s.controller.Snapshot()

	s.setState(StateResolving)
	out := s.resolver.Resolve(now, set.Mode, set.TimeFormat)

	s.setState(StateFetching)
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchBudget)
	defer cancel()

	var content model.DisplayContent
	if forced {
		content = s.fetcher.ComposeFresh(fetchCtx, out, set.Translation, set.Secondary)
	} else {
		content = s.fetcher.Compose(fetchCtx, out, set.Translation, set.Secondary)
	}

	s.setState(StatePublishing)
	for _, p := range s.publishers {
		if err := p.Publish(fetchCtx, content); err != nil {
			appLog.Error("publish failed", err,
				"publisher", p.Name(),
				"title", content.Title(),
				"mode", set.Mode,
				"translation", content.Translation,
			)
		}
	}

	s.controller.RecordDisplay(content, set.Mode)
	appLog.Info("cycle complete",
		"kind", content.Kind,
		"title", content.Title(),
		"translation", content.Translation,
		"fallback", content.Fallback,
		"failed", content.Failed,
		"forced", forced,
	)
}

func (s *Scheduler) healthCheck(ctx context.Context) {
	hits, misses, size := s.fetcher.Cache().Stats()
	stats := s.controller.Stats()

	kv := []any{
		"state", s.State(),
		"uptime", time.Since(stats.Since).Round(time.Second),
		"verses_today", stats.VersesToday,
		"cache_hits", hits,
		"cache_misses", misses,
		"cache_size", size,
	}
	if s.healthKV != nil {
		kv = append(kv, s.healthKV(ctx)...)
	}
	appLog.Info("health check", kv...)
}

func (s *Scheduler) maintenance() {
	removed := s.fetcher.Cache().PurgeExpired()
	s.controller.ResetDaily()
	appLog.Info("maintenance complete", "cache_purged", removed)
}
