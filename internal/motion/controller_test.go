package motion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/metrics"
)

type fakeToggler struct {
	mu    sync.Mutex
	calls []bool
	fail  func(enabled bool) error
	ch    chan bool
}

func newFakeToggler() *fakeToggler {
	return &fakeToggler{ch: make(chan bool, 16)}
}

func (f *fakeToggler) SetStreamEnabled(_ context.Context, enabled bool) error {
	f.mu.Lock()
	f.calls = append(f.calls, enabled)
	f.mu.Unlock()
	f.ch <- enabled
	if f.fail != nil {
		return f.fail(enabled)
	}
	return nil
}

func (f *fakeToggler) callList() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.calls...)
}

func testConfig() Config {
	return Config{
		MotionThreshold: 1,
		MotionTimeout:   5 * time.Second,
		TickInterval:    1 * time.Second,
		QueueSize:       16,
		ToggleTimeout:   time.Second,
	}
}

func startController(t *testing.T, cfg Config, tog StreamToggler) (*Controller, *clock.Mock, context.CancelFunc, chan struct{}) {
	t.Helper()
	mock := clock.NewMock()
	c := NewController(cfg, tog, mock, metrics.New())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return c, mock, cancel, stopped
}

// advance moves the mock clock in tick-sized steps so the run loop sees
// every tick instead of racing the mock's one-slot ticker buffer.
func advance(mock *clock.Mock, d, step time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		mock.Add(step)
		time.Sleep(2 * time.Millisecond)
	}
}

func waitToggle(t *testing.T, f *fakeToggler, want bool) {
	t.Helper()
	select {
	case got := <-f.ch:
		if got != want {
			t.Fatalf("toggle = %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for toggle %v", want)
	}
}

func requireNoToggle(t *testing.T, f *fakeToggler) {
	t.Helper()
	select {
	case got := <-f.ch:
		t.Fatalf("unexpected toggle %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestIdleToActiveTogglesOnce(t *testing.T) {
	tog := newFakeToggler()
	c, mock, _, _ := startController(t, testConfig(), tog)

	at := mock.Now()
	if !c.Offer(Observation{Time: at, Count: 2}) {
		t.Fatal("Offer rejected")
	}

	waitToggle(t, tog, true)
	requireNoToggle(t, tog)

	st := c.Snapshot()
	if st.Phase != Active {
		t.Fatalf("phase = %v, want Active", st.Phase)
	}
	if !st.LastMotion.Equal(at) {
		t.Fatalf("last motion = %v, want %v", st.LastMotion, at)
	}
}

func TestSustainedMotionEnablesOnce(t *testing.T) {
	tog := newFakeToggler()
	c, mock, _, _ := startController(t, testConfig(), tog)

	base := mock.Now()
	c.Offer(Observation{Time: base, Count: 1})
	waitToggle(t, tog, true)

	// Qualifying observations every second for ten seconds: the enable
	// call must not repeat while the phase stays Active.
	for i := 1; i <= 10; i++ {
		c.Offer(Observation{Time: base.Add(time.Duration(i) * time.Second), Count: 1})
	}
	waitUntil(t, func() bool {
		return c.Snapshot().LastMotion.Equal(base.Add(10 * time.Second))
	})
	requireNoToggle(t, tog)

	// Ticks run on the mock clock, which is still at base: even sixteen
	// seconds of ticking stays behind the refreshed timestamp until the
	// quiet period truly exceeds the timeout.
	advance(mock, 16*time.Second, time.Second)
	waitToggle(t, tog, false)

	if calls := tog.callList(); len(calls) != 2 || !calls[0] || calls[1] {
		t.Fatalf("calls = %v, want [true false]", calls)
	}
}

func TestTickExpiryDisables(t *testing.T) {
	tog := newFakeToggler()
	c, mock, _, _ := startController(t, testConfig(), tog)

	c.Offer(Observation{Time: mock.Now(), Count: 1})
	waitToggle(t, tog, true)

	advance(mock, 6*time.Second, time.Second)
	waitToggle(t, tog, false)

	if st := c.Snapshot(); st.Phase != Idle {
		t.Fatalf("phase = %v, want Idle", st.Phase)
	}
}

func TestTimeoutBoundaryIsExclusive(t *testing.T) {
	tog := newFakeToggler()
	c, mock, _, _ := startController(t, testConfig(), tog)

	c.Offer(Observation{Time: mock.Now(), Count: 1})
	waitToggle(t, tog, true)

	// Quiet for exactly the timeout: not expired yet.
	advance(mock, 5*time.Second, time.Second)
	requireNoToggle(t, tog)
	if st := c.Snapshot(); st.Phase != Active {
		t.Fatalf("phase = %v, want Active at the boundary", st.Phase)
	}

	advance(mock, time.Second, time.Second)
	waitToggle(t, tog, false)
}

func TestObservationDrivenExpiry(t *testing.T) {
	cfg := testConfig()
	cfg.TickInterval = time.Hour // only observations move the clock here
	tog := newFakeToggler()
	c, mock, _, _ := startController(t, cfg, tog)

	base := mock.Now()
	c.Offer(Observation{Time: base, Count: 1})
	waitToggle(t, tog, true)

	// A non-qualifying observation carries the time forward past the
	// timeout; no tick is needed for the disable.
	c.Offer(Observation{Time: base.Add(6 * time.Second), Count: 0})
	waitToggle(t, tog, false)
}

func TestNonQualifyingWhileIdleIsNoop(t *testing.T) {
	cfg := testConfig()
	cfg.MotionThreshold = 2
	tog := newFakeToggler()
	c, mock, _, _ := startController(t, cfg, tog)

	c.Offer(Observation{Time: mock.Now(), Count: 1})
	advance(mock, 3*time.Second, time.Second)
	requireNoToggle(t, tog)

	if st := c.Snapshot(); st.Phase != Idle {
		t.Fatalf("phase = %v, want Idle", st.Phase)
	}
}

func TestThresholdBoundaryQualifies(t *testing.T) {
	cfg := testConfig()
	cfg.MotionThreshold = 3
	tog := newFakeToggler()
	c, mock, _, _ := startController(t, cfg, tog)

	c.Offer(Observation{Time: mock.Now(), Count: 2})
	requireNoToggle(t, tog)

	c.Offer(Observation{Time: mock.Now(), Count: 3})
	waitToggle(t, tog, true)
}

func TestToggleFailureIsNotRetried(t *testing.T) {
	tog := newFakeToggler()
	tog.fail = func(enabled bool) error {
		if enabled {
			return errors.New("mediamtx unreachable")
		}
		return nil
	}
	c, mock, _, _ := startController(t, testConfig(), tog)

	c.Offer(Observation{Time: mock.Now(), Count: 1})
	waitToggle(t, tog, true)
	requireNoToggle(t, tog)

	// The failed enable does not roll the phase back.
	if st := c.Snapshot(); st.Phase != Active {
		t.Fatalf("phase = %v, want Active after failed enable", st.Phase)
	}

	advance(mock, 6*time.Second, time.Second)
	waitToggle(t, tog, false)

	if calls := tog.callList(); len(calls) != 2 {
		t.Fatalf("calls = %v, want exactly one enable and one disable", calls)
	}
}

func TestShutdownDisablesWhileActive(t *testing.T) {
	tog := newFakeToggler()
	c, mock, cancel, stopped := startController(t, testConfig(), tog)

	c.Offer(Observation{Time: mock.Now(), Count: 1})
	waitToggle(t, tog, true)

	cancel()
	waitToggle(t, tog, false)
	<-stopped

	if calls := tog.callList(); len(calls) != 2 || !calls[0] || calls[1] {
		t.Fatalf("calls = %v, want [true false]", calls)
	}
}

func TestShutdownWhileIdleSendsNothing(t *testing.T) {
	tog := newFakeToggler()
	_, _, cancel, stopped := startController(t, testConfig(), tog)

	cancel()
	<-stopped

	if calls := tog.callList(); len(calls) != 0 {
		t.Fatalf("calls = %v, want none", calls)
	}
}

func TestOfferRejectsWhenQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 1
	c := NewController(cfg, newFakeToggler(), clock.NewMock(), metrics.New())

	// Not running: the queue fills and stays full.
	if !c.Offer(Observation{Count: 1}) {
		t.Fatal("first Offer rejected")
	}
	if c.Offer(Observation{Count: 1}) {
		t.Fatal("second Offer accepted with a full queue")
	}
}
