package motion

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/pkg/types"
)

// Phase is the controller's hysteresis state.
type Phase int

const (
	Idle Phase = iota
	Active
)

// String returns the phase name used in logs and wire payloads
func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Observation is one per-frame motion evidence sample. Observations must
// be offered in non-decreasing Time order; out-of-order delivery is a
// caller bug, not defended here.
type Observation struct {
	Time  time.Time
	Count int
}

// StreamToggler enables or disables the downstream live stream output.
// Calls arrive from a single goroutine.
type StreamToggler interface {
	SetStreamEnabled(ctx context.Context, enabled bool) error
}

// StateListener observes phase transitions. Publish must not block.
type StateListener interface {
	Publish(types.StateChange)
}

// Status is a point-in-time view of the controller.
type Status struct {
	Phase      Phase
	LastMotion time.Time
}

// Config holds the controller timing parameters.
type Config struct {
	MotionThreshold int           // min detections per observation to count as motion
	MotionTimeout   time.Duration // quiet period before the stream is disabled
	TickInterval    time.Duration // timeout re-check cadence during silence
	QueueSize       int           // observation buffer
	ToggleTimeout   time.Duration // per toggle call
}

// toggle requests queue up here; a full queue drops the request, which is
// inside the at-most-once contract for toggle delivery.
const toggleQueueSize = 4

// Controller is the hysteresis state machine gating the stream. All
// state lives behind its run loop: observations and clock ticks are the
// only inputs, and toggle calls leave through a dedicated sender
// goroutine so a slow endpoint cannot stall observation intake.
type Controller struct {
	cfg      Config
	toggler  StreamToggler
	clk      clock.Clock
	m        *metrics.Metrics
	listener StateListener

	obsCh    chan Observation
	toggleCh chan bool

	mu         sync.Mutex
	phase      Phase
	lastMotion time.Time
}

// NewController creates an idle controller. A nil clk uses the wall
// clock; tests pass clock.NewMock().
func NewController(cfg Config, toggler StreamToggler, clk clock.Clock, m *metrics.Metrics) *Controller {
	if cfg.MotionThreshold < 1 {
		cfg.MotionThreshold = 1
	}
	if cfg.MotionTimeout <= 0 {
		cfg.MotionTimeout = 5 * time.Second
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 1 * time.Second
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	if cfg.ToggleTimeout <= 0 {
		cfg.ToggleTimeout = 5 * time.Second
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Controller{
		cfg:      cfg,
		toggler:  toggler,
		clk:      clk,
		m:        m,
		obsCh:    make(chan Observation, cfg.QueueSize),
		toggleCh: make(chan bool, toggleQueueSize),
	}
}

// SetListener registers a transition listener. Call before Run.
func (c *Controller) SetListener(l StateListener) {
	c.listener = l
}

// Offer hands an observation to the run loop without blocking and
// reports whether it was accepted.
func (c *Controller) Offer(obs Observation) bool {
	select {
	case c.obsCh <- obs:
		return true
	default:
		return false
	}
}

// Snapshot returns the current phase and last qualifying motion time.
func (c *Controller) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{Phase: c.phase, LastMotion: c.lastMotion}
}

// Run consumes observations and clock ticks until ctx is cancelled. On
// cancellation it disables the stream if still active, then drains any
// pending toggle calls before returning.
func (c *Controller) Run(ctx context.Context) {
	logger.Info("Controller", "Starting (threshold=%d, timeout=%s, tick=%s)",
		c.cfg.MotionThreshold, c.cfg.MotionTimeout, c.cfg.TickInterval)

	done := make(chan struct{})
	go c.sendToggles(done)

	ticker := c.clk.Ticker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			close(c.toggleCh)
			<-done
			logger.Info("Controller", "Stopped")
			return
		case obs := <-c.obsCh:
			c.handleObservation(obs)
		case now := <-ticker.C:
			c.expire(now, 0)
		}
	}
}

func (c *Controller) handleObservation(obs Observation) {
	if obs.Count < c.cfg.MotionThreshold {
		c.expire(obs.Time, obs.Count)
		return
	}

	c.mu.Lock()
	wasIdle := c.phase == Idle
	c.phase = Active
	c.lastMotion = obs.Time
	c.mu.Unlock()

	c.m.SetLastMotion(obs.Time)

	if !wasIdle {
		// Sustained motion only refreshes the timestamp; the enable
		// call already went out on the idle-to-active transition.
		logger.Debug("Controller", "Motion sustained (count=%d)", obs.Count)
		return
	}

	logger.Info("Controller", "Motion detected (count=%d), enabling stream", obs.Count)
	c.m.Activations.Add(1)
	c.m.SetMotionActive(true)
	c.requestToggle(true)
	c.notify(Active, obs.Time, obs.Count)
}

// expire moves Active to Idle once the quiet period strictly exceeds the
// motion timeout. now comes from the observation being handled or from
// the tick, so the timeout fires even when the topic goes silent.
func (c *Controller) expire(now time.Time, count int) {
	c.mu.Lock()
	if c.phase != Active || now.Sub(c.lastMotion) <= c.cfg.MotionTimeout {
		c.mu.Unlock()
		return
	}
	c.phase = Idle
	c.mu.Unlock()

	logger.Info("Controller", "No motion for %s, disabling stream", c.cfg.MotionTimeout)
	c.m.Deactivations.Add(1)
	c.m.SetMotionActive(false)
	c.requestToggle(false)
	c.notify(Idle, now, count)
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	active := c.phase == Active
	c.phase = Idle
	c.mu.Unlock()

	if !active {
		return
	}

	logger.Info("Controller", "Shutting down while active, disabling stream")
	c.m.Deactivations.Add(1)
	c.m.SetMotionActive(false)
	c.requestToggle(false)
	c.notify(Idle, c.clk.Now(), 0)
}

func (c *Controller) requestToggle(enabled bool) {
	select {
	case c.toggleCh <- enabled:
	default:
		c.m.ToggleDropped.Add(1)
		logger.Warn("Controller", "Toggle queue full, dropping enabled=%v request", enabled)
	}
}

// sendToggles is the only caller of the toggler. A failed call is logged
// and counted but never retried; the controller's phase and the stream's
// real state may diverge until the next transition.
func (c *Controller) sendToggles(done chan struct{}) {
	defer close(done)

	for enabled := range c.toggleCh {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ToggleTimeout)
		err := c.toggler.SetStreamEnabled(ctx, enabled)
		cancel()
		if err != nil {
			c.m.ToggleFailure.Add(1)
			logger.Error("Toggle", "Set enabled=%v failed: %v", enabled, err)
			continue
		}
		c.m.ToggleSuccess.Add(1)
		logger.Info("Toggle", "Stream enabled=%v", enabled)
	}
}

func (c *Controller) notify(phase Phase, at time.Time, count int) {
	if c.listener == nil {
		return
	}
	c.listener.Publish(types.StateChange{
		Phase:     phase.String(),
		Timestamp: float64(at.UnixNano()) / float64(time.Second),
		Count:     count,
	})
}
