//go:build !windows

package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SUSE/scriptguard-mcp/validator"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	return New(validator.Default(), Options{WorkDir: t.TempDir()})
}

// processGone reports whether pid no longer exists or is a zombie waiting to
// be reaped by whoever inherited it.
func processGone(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return true
	}
	// pid (comm) state ...
	stat := string(data)
	idx := strings.LastIndexByte(stat, ')')
	if idx < 0 || idx+2 >= len(stat) {
		return false
	}
	return stat[idx+2] == 'Z'
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
	lines  []string
	result *Result
	// startDelay slows down OnStart.
	startDelay time.Duration
}

func (o *recordingObserver) OnStart(code string) {
	time.Sleep(o.startDelay)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "start")
}

func (o *recordingObserver) OnProgress(message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "progress")
	o.lines = append(o.lines, message)
}

func (o *recordingObserver) OnComplete(result *Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "complete")
	o.result = result
}

func TestExecute_CapturesOutputAndExitCode(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Execute(context.Background(), "echo out; echo err >&2; exit 3", 10, nil)
	require.NoError(t, err)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 3, *res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.False(t, res.TimedOut)
	assert.GreaterOrEqual(t, res.DurationMs, int64(0))
}

func TestExecute_ZeroExit(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Execute(context.Background(), "true", 5, nil)
	require.NoError(t, err)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 0, *res.ExitCode)
}

func TestExecute_TimeoutKillsProcessTree(t *testing.T) {
	e := newTestEngine(t)

	start := time.Now()
	res, err := e.Execute(context.Background(), "sleep 30 >/dev/null 2>&1 & echo $!; echo partial; sleep 30", 1, nil)
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.True(t, res.TimedOut)
	assert.False(t, res.Canceled)
	assert.Nil(t, res.ExitCode)
	assert.Less(t, elapsed, 5*time.Second)
	assert.Contains(t, res.Stdout, "partial")

	pid, err := strconv.Atoi(strings.SplitN(res.Stdout, "\n", 2)[0])
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return processGone(pid) }, 3*time.Second, 50*time.Millisecond,
		"background child %d survived the timeout", pid)
}

func TestExecute_ReapsBackgroundChildrenAfterNormalExit(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Execute(context.Background(), "sleep 30 >/dev/null 2>&1 & echo $!", 10, nil)
	require.NoError(t, err)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 0, *res.ExitCode)

	pid, err := strconv.Atoi(strings.TrimSpace(res.Stdout))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return processGone(pid) }, 3*time.Second, 50*time.Millisecond)
}

func TestExecute_CancelBehavesLikeTimeout(t *testing.T) {
	e := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	res, err := e.Execute(ctx, "sleep 30", 60, nil)
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.True(t, res.Canceled)
	assert.Nil(t, res.ExitCode)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecute_AlreadyCanceledDoesNotSpawn(t *testing.T) {
	e := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	marker := t.TempDir() + "/ran"
	res, err := e.Execute(ctx, "touch "+marker, 5, nil)
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.True(t, res.Canceled)
	assert.NoFileExists(t, marker)
}

func TestExecute_InvalidTimeout(t *testing.T) {
	e := newTestEngine(t)

	for _, timeout := range []int{0, -1, 301} {
		res, err := e.Execute(context.Background(), "echo hi", timeout, nil)
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, ErrInvalidTimeout), "timeout %d", timeout)
	}

	_, err := e.Execute(context.Background(), "true", MaxTimeoutSeconds, nil)
	assert.NoError(t, err)
}

func TestExecute_InvalidTimeoutCheckedBeforeValidation(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Execute(context.Background(), "rm -rf /", 0, nil)
	assert.True(t, errors.Is(err, ErrInvalidTimeout))
}

func TestExecute_BlockedCodeNeverRuns(t *testing.T) {
	e := newTestEngine(t)

	marker := t.TempDir() + "/ran"
	obs := &recordingObserver{}
	res, err := e.Execute(context.Background(), "touch "+marker+"; shutdown -h now", 5, obs)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, validator.ErrBlocked))

	var blocked *validator.BlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, validator.Power, blocked.Category)

	assert.NoFileExists(t, marker)
	assert.Empty(t, obs.events)
}

func TestExecute_MissingInterpreterIsFatal(t *testing.T) {
	e := New(validator.Default(), Options{
		Shell:   Shell{Command: "/nonexistent/interpreter", Args: []string{"-c"}},
		WorkDir: t.TempDir(),
	})

	res, err := e.Execute(context.Background(), "echo hi", 5, nil)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrFatal))
}

func TestExecute_ObserverOrdering(t *testing.T) {
	e := newTestEngine(t)

	obs := &recordingObserver{}
	res, err := e.Execute(context.Background(), "echo one; echo two; printf three", 5, obs)
	require.NoError(t, err)

	require.NotEmpty(t, obs.events)
	assert.Equal(t, "start", obs.events[0])
	assert.Equal(t, "complete", obs.events[len(obs.events)-1])
	assert.Equal(t, []string{"one", "two", "three"}, obs.lines)
	assert.Same(t, res, obs.result)
}

func TestExecute_SlowOnStartStillComesFirst(t *testing.T) {
	e := newTestEngine(t)

	obs := &recordingObserver{startDelay: 100 * time.Millisecond}
	_, err := e.Execute(context.Background(), "echo one; echo two", 5, obs)
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "progress", "progress", "complete"}, obs.events)
	assert.Equal(t, []string{"one", "two"}, obs.lines)
}

func TestLineWriter_HoldsLinesUntilReleased(t *testing.T) {
	var got []string
	w := newLineWriter(func(line string) { got = append(got, line) })

	_, err := w.Write([]byte("a\nb\npart"))
	require.NoError(t, err)
	assert.Empty(t, got)

	w.Release()
	assert.Equal(t, []string{"a", "b"}, got)

	_, err = w.Write([]byte("ial\nc"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "partial"}, got)

	w.Flush()
	assert.Equal(t, []string{"a", "b", "partial", "c"}, got)
}

func TestExecute_EnvironmentIsFiltered(t *testing.T) {
	e := newTestEngine(t)
	t.Setenv("SCRIPTGUARD_TEST_SECRET", "leak")

	// The engine snapshots the environment at construction.
	e = New(validator.Default(), Options{WorkDir: t.TempDir()})
	res, err := e.Execute(context.Background(), "echo \"[${SCRIPTGUARD_TEST_SECRET:-}]\"", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", res.Stdout)
}

func TestExecute_ConcurrentCallsAreIsolated(t *testing.T) {
	e := newTestEngine(t)

	const n = 8
	var wg sync.WaitGroup
	results := make([]*Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := fmt.Sprintf("echo job-%d; echo fail-%d >&2; exit %d", i, i, i)
			results[i], errs[i] = e.Execute(context.Background(), code, 10, nil)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("job-%d\n", i), results[i].Stdout)
		assert.Equal(t, fmt.Sprintf("fail-%d\n", i), results[i].Stderr)
		require.NotNil(t, results[i].ExitCode)
		assert.Equal(t, i, *results[i].ExitCode)
	}
}

func TestLineWriter_SplitsLines(t *testing.T) {
	var got []string
	w := newLineWriter(func(s string) { got = append(got, s) })
	w.Release()

	_, _ = w.Write([]byte("a\r\nb"))
	_, _ = w.Write([]byte("c\nd"))
	assert.Equal(t, []string{"a", "bc"}, got)

	w.Flush()
	assert.Equal(t, []string{"a", "bc", "d"}, got)
}
