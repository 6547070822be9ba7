package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/afroash/weatherwd/internal/models"
	"github.com/afroash/weatherwd/internal/observability"
)

// PollSource fetches an external HTTP API on a schedule and serves the last
// good result until it goes stale. Failures trip a circuit breaker so a dead
// service is not hammered every interval.
type PollSource struct {
	name      string
	url       string
	maxAge    time.Duration
	timeout   time.Duration
	client    *http.Client
	circuit   *gobreaker.CircuitBreaker
	scheduler *gocron.Scheduler
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    zerolog.Logger

	mutex     sync.RWMutex
	lastObs   map[models.ObsType]models.Value
	lastText  map[models.ObsType]string
	fetchedAt time.Time
}

// PollConfig configures one polled source.
type PollConfig struct {
	Name         string
	URL          string
	PollInterval time.Duration
	Timeout      time.Duration
	MaxAge       time.Duration
}

// NewPollSource creates a polling source. It does not start polling until
// Start is called.
func NewPollSource(cfg PollConfig, clock clockwork.Clock, metrics *observability.Metrics, logger zerolog.Logger) *PollSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 2 * cfg.PollInterval
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 2,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &PollSource{
		name:      cfg.Name,
		url:       cfg.URL,
		maxAge:    cfg.MaxAge,
		timeout:   cfg.Timeout,
		client:    &http.Client{Timeout: cfg.Timeout},
		circuit:   cb,
		scheduler: gocron.NewScheduler(time.UTC),
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
	}
}

// Start begins polling. The first poll runs immediately so a fresh restart
// does not wait a full interval for adapter fields.
func (p *PollSource) Start(interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if _, err := p.scheduler.Every(interval).StartImmediately().Do(p.poll); err != nil {
		return fmt.Errorf("scheduling %s poll: %w", p.name, err)
	}
	p.scheduler.StartAsync()
	p.logger.Info().Str("source", p.name).Dur("interval", interval).Msg("Adapter polling started")
	return nil
}

// Stop halts polling.
func (p *PollSource) Stop() {
	p.scheduler.Stop()
}

// Name returns the source name.
func (p *PollSource) Name() string { return p.name }

// Fields serves the last good result while it is younger than max age.
func (p *PollSource) Fields() (map[models.ObsType]models.Value, map[models.ObsType]string, bool) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if p.fetchedAt.IsZero() || p.clock.Since(p.fetchedAt) > p.maxAge {
		return nil, nil, false
	}
	return p.lastObs, p.lastText, true
}

// poll performs one fetch through the circuit breaker.
func (p *PollSource) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	raw, err := p.fetch(ctx)
	if err != nil {
		p.countPoll("error")
		p.logger.Warn().Err(fmt.Errorf("%w: %s: %v", models.ErrAdapter, p.name, err)).Msg("Adapter poll failed")
		return
	}

	obs, text, err := decodePayload(raw)
	if err != nil {
		p.countPoll("error")
		p.logger.Warn().Err(err).Str("source", p.name).Msg("Adapter payload malformed")
		return
	}

	p.mutex.Lock()
	p.lastObs = obs
	p.lastText = text
	p.fetchedAt = p.clock.Now()
	p.mutex.Unlock()

	p.countPoll("success")
	p.logger.Debug().Str("source", p.name).Int("observations", len(obs)).Msg("Adapter poll succeeded")
}

func (p *PollSource) countPoll(outcome string) {
	if p.metrics != nil {
		p.metrics.AdapterPolls.WithLabelValues(p.name, outcome).Inc()
	}
}

func (p *PollSource) fetch(ctx context.Context) ([]byte, error) {
	result, err := p.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
