package location

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Options bounds the acquisition timeouts and rates.
type Options struct {
	// HighAccuracyTimeout bounds a one-shot GPS attempt. No cached value is
	// accepted on this tier.
	HighAccuracyTimeout time.Duration
	// ReducedAccuracyTimeout bounds the one-shot network-positioning retry.
	ReducedAccuracyTimeout time.Duration
	// OneShotMaxCacheAge is how old a cached fix may be to satisfy the
	// reduced-accuracy retry without going to the provider.
	OneShotMaxCacheAge time.Duration
	// EmitInterval throttles continuous emission: at most one sample per
	// interval, bounding backend load.
	EmitInterval time.Duration
	// PollInterval is how often the continuous loop wakes up to consider a
	// new fix.
	PollInterval time.Duration
	// ContinuousMaxCacheAge is how old a cached fix may be to stand in for a
	// failed read during continuous acquisition.
	ContinuousMaxCacheAge time.Duration
}

func (o Options) withDefaults() Options {
	if o.HighAccuracyTimeout <= 0 {
		o.HighAccuracyTimeout = 30 * time.Second
	}
	if o.ReducedAccuracyTimeout <= 0 {
		o.ReducedAccuracyTimeout = 30 * time.Second
	}
	if o.OneShotMaxCacheAge <= 0 {
		o.OneShotMaxCacheAge = 60 * time.Second
	}
	if o.EmitInterval <= 0 {
		o.EmitInterval = 10 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.ContinuousMaxCacheAge <= 0 {
		o.ContinuousMaxCacheAge = 30 * time.Second
	}
	return o
}

// Subscription is the handle for one continuous acquisition run.
type Subscription struct {
	cancel  context.CancelFunc
	done    chan struct{}
	stopped atomic.Bool
}

// Service is the location acquisition service. It owns the provider tiers and
// the wake lock; callers never touch raw platform handles.
type Service struct {
	highTier    Provider
	reducedTier Provider
	wakeLock    WakeLock
	logger      zerolog.Logger
	opts        Options

	ensureOnce sync.Once
	readyErr   error

	mu     sync.Mutex
	cached *Reading
	active *Subscription
}

// NewService creates a Service over the two provider tiers. Either tier may
// be nil when the platform lacks it; the service degrades accordingly.
func NewService(highTier, reducedTier Provider, wakeLock WakeLock, logger zerolog.Logger, opts Options) *Service {
	return &Service{
		highTier:    highTier,
		reducedTier: reducedTier,
		wakeLock:    wakeLock,
		logger:      logger,
		opts:        opts.withDefaults(),
	}
}

// EnsureReady performs the one-time warm-up of the service. It is memoized
// per Service instance and safe to call from any caller that is about to
// acquire.
func (s *Service) EnsureReady(ctx context.Context) error {
	s.ensureOnce.Do(func() {
		if s.highTier == nil && s.reducedTier == nil {
			s.readyErr = errors.New("no location provider configured")
			return
		}
		s.logger.Debug().
			Bool("high_tier", s.highTier != nil).
			Bool("reduced_tier", s.reducedTier != nil).
			Msg("location service ready")
	})
	return s.readyErr
}

// RequestOneShot resolves the current position once. The high-accuracy tier
// is tried first with no cache tolerance; on an unavailable or timed-out fix
// (but not on permission denial) it retries once at reduced accuracy, where a
// recent cached fix is acceptable. GPS-denied environments often still
// resolve via network positioning, which is the point of the second tier.
func (s *Service) RequestOneShot(ctx context.Context) (Reading, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return Reading{}, err
	}

	var highErr error
	if s.highTier != nil {
		hctx, cancel := context.WithTimeout(ctx, s.opts.HighAccuracyTimeout)
		reading, err := s.highTier.GetLocation(hctx)
		cancel()
		if err == nil {
			s.storeCached(reading)
			return reading, nil
		}
		if errors.Is(err, ErrPermissionDenied) {
			return Reading{}, err
		}
		highErr = err
		s.logger.Warn().Err(err).Msg("high-accuracy fix failed, retrying at reduced accuracy")
	}

	if cached, ok := s.cachedReading(s.opts.OneShotMaxCacheAge); ok {
		return cached, nil
	}

	if s.reducedTier == nil {
		if highErr != nil {
			return Reading{}, highErr
		}
		return Reading{}, ErrPositionUnavailable
	}

	rctx, cancel := context.WithTimeout(ctx, s.opts.ReducedAccuracyTimeout)
	reading, err := s.reducedTier.GetLocation(rctx)
	cancel()
	if err != nil {
		if errors.Is(highErr, ErrTimeout) && errors.Is(err, ErrTimeout) {
			return Reading{}, ErrTimeout
		}
		return Reading{}, err
	}

	s.storeCached(reading)
	return reading, nil
}

// StartContinuous begins periodic acquisition, invoking onSample for each
// accepted fix at most once per emit interval. A wake lock is held for the
// duration of the run and reacquired if the platform revokes it. Stop the
// returned subscription to end the run; a fix resolving after Stop is
// discarded.
func (s *Service) StartContinuous(onSample func(Reading), onError func(error)) (*Subscription, error) {
	if err := s.EnsureReady(context.Background()); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.active != nil && !s.active.stopped.Load() {
		s.mu.Unlock()
		return nil, errors.New("location acquisition is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.active = sub
	s.mu.Unlock()

	if err := s.wakeLock.Acquire(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to acquire wake lock")
	}

	go s.continuousLoop(ctx, sub, onSample, onError)

	s.logger.Info().
		Dur("emit_interval", s.opts.EmitInterval).
		Msg("continuous location acquisition started")
	return sub, nil
}

// Stop ends a continuous run. Idempotent: stopping an already-stopped
// subscription (or nil) is a no-op.
func (s *Service) Stop(sub *Subscription) {
	if sub == nil || sub.stopped.Swap(true) {
		return
	}
	sub.cancel()
	<-sub.done

	s.finishSubscription(sub)
	s.logger.Info().Msg("continuous location acquisition stopped")
}

func (s *Service) finishSubscription(sub *Subscription) {
	s.mu.Lock()
	if s.active == sub {
		s.active = nil
	}
	s.mu.Unlock()

	if err := s.wakeLock.Release(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to release wake lock")
	}
}

func (s *Service) continuousLoop(ctx context.Context, sub *Subscription, onSample func(Reading), onError func(error)) {
	defer close(sub.done)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	var lastEmit time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// The platform may drop the inhibitor while we are still
		// acquiring, e.g. when the app is backgrounded. Take it back.
		if !s.wakeLock.Held() {
			if err := s.wakeLock.Acquire(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to reacquire wake lock")
			}
		}

		if !lastEmit.IsZero() && time.Since(lastEmit) < s.opts.EmitInterval {
			continue
		}

		reading, err := s.resolveContinuous(ctx)
		if sub.stopped.Load() || ctx.Err() != nil {
			return
		}
		if err != nil {
			if Terminal(err) {
				sub.stopped.Store(true)
				sub.cancel()
				s.finishSubscription(sub)
				onError(err)
				return
			}
			s.logger.Warn().Err(err).Msg("location fix failed, will retry")
			onError(err)
			continue
		}

		lastEmit = time.Now()
		onSample(reading)
	}
}

// resolveContinuous produces the next fix for the continuous loop: high tier,
// then reduced tier, then the cache within its tolerance.
func (s *Service) resolveContinuous(ctx context.Context) (Reading, error) {
	var lastErr error

	for _, tier := range []Provider{s.highTier, s.reducedTier} {
		if tier == nil {
			continue
		}
		tctx, cancel := context.WithTimeout(ctx, s.opts.EmitInterval)
		reading, err := tier.GetLocation(tctx)
		cancel()
		if err == nil {
			s.storeCached(reading)
			return reading, nil
		}
		if errors.Is(err, ErrPermissionDenied) {
			return Reading{}, err
		}
		lastErr = err
	}

	if cached, ok := s.cachedReading(s.opts.ContinuousMaxCacheAge); ok {
		return cached, nil
	}
	if lastErr == nil {
		lastErr = ErrPositionUnavailable
	}
	return Reading{}, lastErr
}

func (s *Service) storeCached(r Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = &r
}

func (s *Service) cachedReading(maxAge time.Duration) (Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil || s.cached.Age(time.Now()) > maxAge {
		return Reading{}, false
	}
	return *s.cached, true
}

// Close releases both provider tiers.
func (s *Service) Close() error {
	var firstErr error
	for _, tier := range []Provider{s.highTier, s.reducedTier} {
		if tier == nil {
			continue
		}
		if err := tier.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
