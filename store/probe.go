package store

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

// DefaultProbeSchedule runs the store health probe once a minute.
const DefaultProbeSchedule = "@every 1m"

var probeCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Pinger is the part of Gateway the prober needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProbeResult is the outcome of one health probe.
type ProbeResult struct {
	At       time.Time
	Duration time.Duration
	Err      error
}

// Healthy reports whether the probe succeeded.
func (r ProbeResult) Healthy() bool {
	return r.Err == nil
}

// ProberConfig configures a Prober.
type ProberConfig struct {
	Store    Pinger
	Schedule string
	Logger   *slog.Logger
	// OnResult, if set, receives every probe outcome.
	OnResult func(ProbeResult)
}

// Prober periodically checks that the store can be opened and read.
type Prober struct {
	store    Pinger
	schedule cron.Schedule
	logger   *slog.Logger
	onResult func(ProbeResult)

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	last    ProbeResult
	started bool
}

// NewProber validates the schedule and returns an unstarted prober.
func NewProber(cfg ProberConfig) (*Prober, error) {
	if cfg.Store == nil {
		return nil, errors.New("store: prober requires a store")
	}
	expr := strings.TrimSpace(cfg.Schedule)
	if expr == "" {
		expr = DefaultProbeSchedule
	}
	schedule, err := parseScheduleUTC(expr)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		store:    cfg.Store,
		schedule: schedule,
		logger:   logger,
		onResult: cfg.OnResult,
	}, nil
}

// Start schedules the probe. The prober stops when ctx is cancelled or Stop
// is called.
func (p *Prober) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("store: prober already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithLocation(time.UTC), cron.WithParser(probeCronParser))
	c.Schedule(p.schedule, cron.FuncJob(func() {
		p.Probe(runCtx)
	}))
	c.Start()

	p.cron = c
	p.cancel = cancel
	p.started = true
	return nil
}

// Stop halts scheduling and waits for a running probe to finish.
func (p *Prober) Stop(ctx context.Context) error {
	p.mu.Lock()
	c := p.cron
	cancel := p.cancel
	p.cron = nil
	p.cancel = nil
	p.started = false
	p.mu.Unlock()

	if c == nil {
		return nil
	}
	cancel()
	done := c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Probe runs one health check immediately.
func (p *Prober) Probe(ctx context.Context) ProbeResult {
	start := time.Now()
	err := p.store.Ping(ctx)
	result := ProbeResult{
		At:       start.UTC(),
		Duration: time.Since(start),
		Err:      err,
	}

	if err != nil {
		p.logger.Warn("store health probe failed", slog.Any("error", err))
	} else {
		p.logger.Debug("store health probe ok", slog.Duration("duration", result.Duration))
	}

	p.mu.Lock()
	p.last = result
	p.mu.Unlock()

	if p.onResult != nil {
		p.onResult(result)
	}
	return result
}

// Last returns the most recent probe outcome.
func (p *Prober) Last() ProbeResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func parseScheduleUTC(expr string) (cron.Schedule, error) {
	upper := strings.ToUpper(expr)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, errors.New("store: probe schedule must be UTC-only (timezone prefixes are not allowed)")
	}
	schedule, err := probeCronParser.Parse(expr)
	if err != nil {
		return nil, errors.Wrap(err, "store: invalid probe schedule")
	}
	return schedule, nil
}
