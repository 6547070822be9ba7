package augment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/afroash/weatherwd/internal/adapters"
	"github.com/afroash/weatherwd/internal/calc"
	"github.com/afroash/weatherwd/internal/host"
	"github.com/afroash/weatherwd/internal/models"
	"github.com/afroash/weatherwd/internal/observability"
	"github.com/afroash/weatherwd/internal/storage"
)

// State names the service's lifecycle phase.
type State string

const (
	StateColdStart  State = "cold_start"
	StateIdle       State = "idle"
	StateAugmenting State = "augmenting"
)

// Config holds the service's tunables.
type Config struct {
	ColdStartDays  int // how far back the accumulator rebuild may scan
	RainRateWindow int // matches the calculator's smoothing window, in archive intervals
	Bounds         models.BoundaryRule
}

// Service consumes archive notifications and writes one supplementary record
// per archive interval. It owns the calculator's rolling state and never
// lets a single bad interval stop the feed: an interval that cannot be
// augmented is logged, counted and lost.
type Service struct {
	store   storage.Store
	queue   *host.NotificationQueue
	calc    *calc.Calculator
	merger  *adapters.Merger
	hostc   host.Client
	cfg     Config
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  zerolog.Logger

	mutex   sync.RWMutex
	state   State
	rolling calc.RollingState
}

// New creates the augmentation service in the cold-start state.
func New(
	store storage.Store,
	queue *host.NotificationQueue,
	calculator *calc.Calculator,
	merger *adapters.Merger,
	hostc host.Client,
	cfg Config,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Service {
	if cfg.ColdStartDays <= 0 {
		cfg.ColdStartDays = 32
	}
	if cfg.RainRateWindow <= 0 {
		cfg.RainRateWindow = 5
	}
	if hostc == nil {
		hostc = host.Unavailable()
	}
	return &Service{
		store:   store,
		queue:   queue,
		calc:    calculator,
		merger:  merger,
		hostc:   hostc,
		cfg:     cfg,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
		state:   StateColdStart,
	}
}

// State returns the current lifecycle phase.
func (s *Service) State() State {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state
}

// RollingState returns a view of the accumulator state, for diagnostics.
func (s *Service) RollingState() calc.RollingState {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.rolling
}

// ColdStart rebuilds the rolling accumulators from the store. It is a pure
// function of store contents: running it twice yields the same state, so a
// crash between rebuild and the first append is harmless.
func (s *Service) ColdStart() error {
	started := s.clock.Now()

	s.mutex.Lock()
	s.state = StateColdStart
	s.rolling = calc.RollingState{}
	s.mutex.Unlock()

	latest, err := s.store.Latest()
	if err != nil {
		return err
	}

	rolling := calc.RollingState{}

	if latest != nil {
		// Storm bookkeeping survives in the latest record itself.
		if latest.StormRain != nil {
			rolling.StormRain = *latest.StormRain
			if latest.StormStart != nil {
				rolling.StormStart = *latest.StormStart
			}
		}
		if err := s.refillRainWindow(latest, &rolling); err != nil {
			return err
		}
	}

	// An empty or long-idle store cannot say when it last rained; the host
	// archive kept recording, so its rain day summaries fill that state.
	if latest == nil || s.clock.Since(latest.Time) >= 24*time.Hour {
		if err := s.hostRainBackfill(&rolling); err != nil {
			return err
		}
	}

	s.mutex.Lock()
	s.rolling = rolling
	s.mutex.Unlock()

	s.logger.Info().
		Int("rain_window", len(rolling.RainRates)).
		Float64("storm_rain", rolling.StormRain).
		Time("last_rain", rolling.LastRainTime).
		Msg("Cold start accumulators rebuilt")
	s.finishColdStart(started)
	return nil
}

// refillRainWindow rebuilds the rain-rate smoothing window from the most
// recent records. The window spans RainRateWindow archive intervals; the scan
// is bounded, so a store idle for longer than the cold-start horizon just
// starts with an empty window.
func (s *Service) refillRainWindow(latest *models.Record, rolling *calc.RollingState) error {
	interval := latest.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	windowStart := latest.Time.AddDate(0, 0, -s.cfg.ColdStartDays)
	recent, err := s.store.RangeQuery(
		latest.Time.Add(-time.Duration(s.cfg.RainRateWindow)*interval),
		latest.Time.Add(time.Second), 0)
	if err != nil {
		return err
	}
	for _, r := range recent {
		if r.Time.Before(windowStart) {
			continue
		}
		if r.RainRate != nil {
			rolling.RainRates = append(rolling.RainRates, *r.RainRate)
			if *r.RainRate > 0 {
				rolling.LastRainTime = r.Time
			}
		}
	}
	if n := len(rolling.RainRates); n > s.cfg.RainRateWindow {
		rolling.RainRates = rolling.RainRates[n-s.cfg.RainRateWindow:]
	}
	return nil
}

// hostRainBackfill recovers last-rain and storm state from the host's rain
// day summaries when the supplementary store cannot provide them. The most
// recent wet day within the horizon sets the last rain time; the consecutive
// wet stretch ending there seeds the storm accumulator when its rain is
// recent enough for the storm to still be live.
func (s *Service) hostRainBackfill(rolling *calc.RollingState) error {
	today := s.cfg.Bounds.DayStart(s.clock.Now())

	var wetEnd time.Time
	for i := 0; i < s.cfg.ColdStartDays; i++ {
		day := today.AddDate(0, 0, -i)
		sum, err := s.hostc.DaySummary(models.FieldRain, day)
		if err != nil {
			return err
		}
		if sum == nil || sum.Count == 0 || sum.Sum <= 0 {
			continue
		}
		wetEnd = day
		if sum.MaxTime != nil {
			rolling.LastRainTime = *sum.MaxTime
		} else {
			rolling.LastRainTime = day
		}
		break
	}
	if wetEnd.IsZero() {
		s.logger.Debug().Msg("No wet day in the host record within the cold-start horizon")
		return nil
	}

	stormRain := 0.0
	stormStart := wetEnd
	for i := 0; i < s.cfg.ColdStartDays; i++ {
		day := wetEnd.AddDate(0, 0, -i)
		sum, err := s.hostc.DaySummary(models.FieldRain, day)
		if err != nil {
			return err
		}
		if sum == nil || sum.Count == 0 || sum.Sum <= 0 {
			break
		}
		stormRain += sum.Sum
		stormStart = day
	}

	// A storm more than a day cold would be reset on the next interval
	// anyway; only a live one is worth seeding.
	if s.clock.Now().Sub(rolling.LastRainTime) < 24*time.Hour {
		rolling.StormRain = stormRain
		rolling.StormStart = stormStart
		s.logger.Info().
			Time("storm_start", stormStart).
			Float64("storm_rain", stormRain).
			Msg("Storm state recovered from host day summaries")
	}
	return nil
}

func (s *Service) finishColdStart(started time.Time) {
	s.metrics.ColdStartDuration.Set(s.clock.Since(started).Seconds())
	s.mutex.Lock()
	s.state = StateIdle
	s.mutex.Unlock()
}

// Run consumes notifications until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info().Msg("Augmentation service running")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Augmentation service stopped")
			return
		case <-s.queue.Ready():
			n, ok := s.queue.Pop()
			if !ok {
				continue
			}
			s.metrics.QueueDepth.Set(float64(s.queue.Size()))
			s.Process(n)
		}
	}
}

// Process augments one archive interval. Exported so cold-start replays and
// tests can drive the service synchronously.
func (s *Service) Process(n models.Notification) {
	if n.Snapshot == nil {
		s.metrics.RecordsSkipped.WithLabelValues("invalid").Inc()
		return
	}

	s.mutex.Lock()
	s.state = StateAugmenting
	s.mutex.Unlock()
	s.metrics.ServiceAugmenting.Set(1)
	started := s.clock.Now()
	defer func() {
		s.metrics.AugmentDuration.Observe(s.clock.Since(started).Seconds())
		s.metrics.ServiceAugmenting.Set(0)
		s.mutex.Lock()
		s.state = StateIdle
		s.mutex.Unlock()
	}()

	snap := n.Snapshot
	if s.merger != nil {
		snap = s.merger.Merge(snap)
	}

	prev, err := s.store.Latest()
	if err != nil {
		s.logger.Error().Err(err).Time("timestamp", snap.Time).Msg("Interval lost: cannot read latest record")
		s.metrics.RecordsSkipped.WithLabelValues("store_error").Inc()
		return
	}

	s.mutex.RLock()
	rolling := s.rolling
	s.mutex.RUnlock()

	rec, next, compErrs := s.calc.Calculate(snap, prev, rolling)
	for _, ce := range compErrs {
		s.metrics.FieldFailures.WithLabelValues(string(ce.Field)).Inc()
	}

	appendStart := s.clock.Now()
	err = s.store.Append(rec)
	s.metrics.AppendDuration.Observe(s.clock.Since(appendStart).Seconds())
	switch {
	case errors.Is(err, models.ErrOutOfOrder):
		// A record at or before the newest row is an anomaly in the host
		// feed; it is skipped for good, never retried.
		s.logger.Warn().Err(err).Time("timestamp", rec.Time).Msg("Out-of-order archive record skipped")
		s.metrics.RecordsSkipped.WithLabelValues("out_of_order").Inc()
		return
	case err != nil:
		s.logger.Error().Err(err).Time("timestamp", rec.Time).Msg("Interval lost: append failed")
		s.metrics.RecordsSkipped.WithLabelValues("store_error").Inc()
		return
	}

	s.mutex.Lock()
	s.rolling = next
	s.mutex.Unlock()
	s.metrics.RecordsAugmented.Inc()

	s.logger.Debug().
		Time("timestamp", rec.Time).
		Int("computation_errors", len(compErrs)).
		Msg("Archive record augmented")
}
