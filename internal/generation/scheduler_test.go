package generation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gate is a generation that blocks until released and counts its runs.
type gate struct {
	runs    atomic.Int32
	running atomic.Int32
	overlap atomic.Bool
	release chan struct{}
}

func newGate() *gate { return &gate{release: make(chan struct{})} }

func (g *gate) fn(val string, err error) Func[string] {
	return func(ctx context.Context) (string, error) {
		g.runs.Add(1)
		if g.running.Add(1) > 1 {
			g.overlap.Store(true)
		}
		defer g.running.Add(-1)
		<-g.release
		return val, err
	}
}

func TestScheduler_ConcurrentCallersShareOneRun(t *testing.T) {
	s := New[string, string]()
	g := newGate()

	const n = 10
	results := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := s.Do(context.Background(), "sales", false, g.fn("render-1", nil))
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return s.Waiting("sales") == n }, time.Second, time.Millisecond)
	assert.True(t, s.InFlight("sales"))
	close(g.release)
	wg.Wait()

	assert.Equal(t, int32(1), g.runs.Load())
	for _, v := range results {
		assert.Equal(t, "render-1", v)
	}
	assert.False(t, s.InFlight("sales"))
	assert.Equal(t, 0, s.Waiting("sales"))
}

func TestScheduler_ErrorIsShared(t *testing.T) {
	s := New[string, string]()
	g := newGate()
	boom := errors.New("render failed")

	const n = 5
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Do(context.Background(), "sales", false, g.fn("", boom))
		}(i)
	}
	require.Eventually(t, func() bool { return s.Waiting("sales") == n }, time.Second, time.Millisecond)
	close(g.release)
	wg.Wait()

	assert.Equal(t, int32(1), g.runs.Load())
	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}
	assert.False(t, s.InFlight("sales"), "failed calls are removed")
}

func TestScheduler_KeysAreIndependent(t *testing.T) {
	s := New[string, int]()
	release := make(chan struct{})
	var runs atomic.Int32
	fn := func(ctx context.Context) (int, error) {
		runs.Add(1)
		<-release
		return 1, nil
	}

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, err := s.Do(context.Background(), key, false, fn)
			assert.NoError(t, err)
		}(key)
	}
	require.Eventually(t, func() bool { return s.InFlight("a") && s.InFlight("b") }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(2), runs.Load())
}

func TestScheduler_SequentialCallsRunAgain(t *testing.T) {
	s := New[string, int]()
	var runs atomic.Int32
	fn := func(ctx context.Context) (int, error) { return int(runs.Add(1)), nil }

	v1, err := s.Do(context.Background(), "k", false, fn)
	require.NoError(t, err)
	v2, err := s.Do(context.Background(), "k", false, fn)
	require.NoError(t, err)

	assert.Equal(t, 1, v1)
	assert.Equal(t, 2, v2)
}

func TestScheduler_ForceDoesNotReuseOlderRun(t *testing.T) {
	s := New[string, string]()
	first := newGate()
	second := newGate()

	done := make(chan string, 1)
	go func() {
		v, _ := s.Do(context.Background(), "k", false, first.fn("old", nil))
		done <- v
	}()
	require.Eventually(t, func() bool { return s.InFlight("k") }, time.Second, time.Millisecond)

	forced := make(chan string, 1)
	go func() {
		v, err := s.Do(context.Background(), "k", true, second.fn("new", nil))
		assert.NoError(t, err)
		forced <- v
	}()
	require.Eventually(t, func() bool { return s.Waiting("k") == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), second.runs.Load(), "forced run must wait for the older run")

	close(first.release)
	assert.Equal(t, "old", <-done)

	require.Eventually(t, func() bool { return second.runs.Load() == 1 }, time.Second, time.Millisecond)
	close(second.release)
	assert.Equal(t, "new", <-forced)

	assert.False(t, first.overlap.Load() || second.overlap.Load())
	assert.Equal(t, int32(1), first.runs.Load())
}

func TestScheduler_ForcedCallersShareNewerRun(t *testing.T) {
	s := New[string, string]()
	old := newGate()
	fresh := newGate()

	go func() { _, _ = s.Do(context.Background(), "k", false, old.fn("old", nil)) }()
	require.Eventually(t, func() bool { return s.InFlight("k") }, time.Second, time.Millisecond)

	const n = 4
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() {
			v, _ := s.Do(context.Background(), "k", true, fresh.fn("fresh", nil))
			results <- v
		}()
	}
	require.Eventually(t, func() bool { return s.Waiting("k") == n+1 }, time.Second, time.Millisecond)

	close(old.release)
	require.Eventually(t, func() bool { return fresh.runs.Load() == 1 && s.Waiting("k") == n }, time.Second, time.Millisecond)
	close(fresh.release)

	for i := 0; i < n; i++ {
		assert.Equal(t, "fresh", <-results)
	}
	assert.Equal(t, int32(1), fresh.runs.Load())
}

func TestScheduler_CancelledWaiterLeavesRunAlive(t *testing.T) {
	s := New[string, string]()
	g := newGate()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := s.Do(ctx, "k", false, g.fn("v", nil))
		errc <- err
	}()

	other := make(chan string, 1)
	require.Eventually(t, func() bool { return s.InFlight("k") }, time.Second, time.Millisecond)
	go func() {
		v, _ := s.Do(context.Background(), "k", false, g.fn("unused", nil))
		other <- v
	}()
	require.Eventually(t, func() bool { return s.Waiting("k") == 2 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.True(t, s.InFlight("k"))

	close(g.release)
	assert.Equal(t, "v", <-other)
	assert.Equal(t, int32(1), g.runs.Load())
}

func TestScheduler_RunContextIsDetached(t *testing.T) {
	s := New[string, string]()
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	result := make(chan error, 1)

	go func() {
		_, _ = s.Do(ctx, "k", false, func(runCtx context.Context) (string, error) {
			<-release
			result <- runCtx.Err()
			return "", nil
		})
	}()
	require.Eventually(t, func() bool { return s.InFlight("k") }, time.Second, time.Millisecond)
	cancel()
	close(release)

	assert.NoError(t, <-result)
}

func TestScheduler_PanicBecomesError(t *testing.T) {
	s := New[string, int]()
	_, err := s.Do(context.Background(), "k", false, func(ctx context.Context) (int, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.False(t, s.InFlight("k"))
}
