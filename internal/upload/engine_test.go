package upload

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plc-visualizer/uploader/internal/logging"
	"github.com/plc-visualizer/uploader/internal/models"
	"github.com/plc-visualizer/uploader/internal/realtime"
	"github.com/plc-visualizer/uploader/internal/testutil"
	"github.com/plc-visualizer/uploader/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statuses(recs []models.FileRecord) []models.Status {
	out := make([]models.Status, len(recs))
	for i, r := range recs {
		out[i] = r.Status
	}
	return out
}

func byName(t *testing.T, e *Engine, name string) models.FileRecord {
	t.Helper()
	for _, r := range e.Snapshot() {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no visible record named %s", name)
	return models.FileRecord{}
}

func newEngine(t *testing.T, adapter *testutil.ScriptedAdapter, opts Options) *Engine {
	t.Helper()
	opts.Logger = logging.Discard()
	e, err := New(adapter, opts)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { e.Dispose() })
	return e
}

func publish(t *testing.T, hub *realtime.Hub, ev models.ProcessingEvent) {
	t.Helper()
	require.NoError(t, hub.Publish(context.Background(), ev))
}

func TestNew_RequiresAdapter(t *testing.T) {
	_, err := New(nil, Options{})
	assert.ErrorIs(t, err, ErrNilAdapter)

	_, err = New(testutil.NewScriptedAdapter(), Options{MaxConcurrent: -1})
	assert.Error(t, err)
}

func TestSubmitFiles_MixedBatch(t *testing.T) {
	adapter := testutil.NewScriptedAdapter()
	e := newEngine(t, adapter, Options{
		Policy: validation.Policy{MaxFileSize: 1000, AllowedExtensions: []string{"pdf"}},
	})

	files := []*models.File{
		testutil.Sized("a.pdf", 500),
		testutil.Sized("b.pdf", 500),
		testutil.Sized("c.txt", 100),
		testutil.Sized("d.pdf", 2000),
	}

	recs, err := e.SubmitFiles(context.Background(), files, []string{"a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, []models.Status{
		models.StatusDuplicated, models.StatusUploading, models.StatusFileType, models.StatusExceded,
	}, statuses(recs))
	for _, r := range recs {
		assert.NotEmpty(t, r.Key)
		assert.Empty(t, r.ID)
	}

	e.Wait()

	assert.Equal(t, []models.Status{
		models.StatusDuplicated, models.StatusCompleted, models.StatusFileType, models.StatusExceded,
	}, statuses(e.Snapshot()))
	assert.Equal(t, []string{"b.pdf"}, adapter.Calls(), "rejected files never reach the adapter")

	st := e.State()
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 3, st.ErrorCount)
	assert.Equal(t, 1, st.CompleteCount)
	assert.False(t, st.ShouldAutoClose)

	b := byName(t, e, "b.pdf")
	assert.Equal(t, "id-b.pdf", b.ID)
	assert.Equal(t, 100, b.Progress)
}

func TestSubmitFiles_QueueMode(t *testing.T) {
	adapter := testutil.NewScriptedAdapter()
	e := newEngine(t, adapter, Options{QueueMode: true})

	recs, err := e.SubmitFiles(context.Background(),
		[]*models.File{testutil.Sized("one.csv", 10), testutil.Sized("two.csv", 10)}, nil)
	require.NoError(t, err)

	for _, r := range recs {
		assert.Equal(t, models.StatusUploading, r.Status)
		assert.Equal(t, 0, r.Progress)
	}
	assert.Len(t, e.Queue(), 2)
	assert.Equal(t, 2, e.State().QueueLen)
	e.Wait()
	assert.Zero(t, adapter.CallCount())

	require.NoError(t, e.ProcessQueue(context.Background()))

	assert.Equal(t, 2, adapter.CallCount())
	assert.Empty(t, e.Queue())
	assert.Equal(t, []models.Status{models.StatusCompleted, models.StatusCompleted}, statuses(e.Snapshot()))
}

func TestProcessQueue_EmptyIsNoop(t *testing.T) {
	adapter := testutil.NewScriptedAdapter()
	var changes atomic.Int32
	e := newEngine(t, adapter, Options{
		QueueMode: true,
		OnChange:  func(State) { changes.Add(1) },
	})

	require.NoError(t, e.ProcessQueue(context.Background()))

	assert.Zero(t, adapter.CallCount())
	assert.Zero(t, changes.Load())
	assert.Equal(t, State{}, e.State())
}

func TestProcessQueue_ClearsQueueAfterFailures(t *testing.T) {
	adapter := testutil.NewScriptedAdapter().
		On("bad.csv", testutil.Script{Err: errors.New("connection reset")})
	e := newEngine(t, adapter, Options{QueueMode: true})

	_, err := e.SubmitFiles(context.Background(),
		[]*models.File{testutil.Sized("good.csv", 1), testutil.Sized("bad.csv", 1)}, nil)
	require.NoError(t, err)

	require.NoError(t, e.ProcessQueue(context.Background()))

	assert.Empty(t, e.Queue())
	assert.Equal(t, []models.Status{models.StatusCompleted, models.StatusFailed}, statuses(e.Snapshot()))

	require.NoError(t, e.ProcessQueue(context.Background()))
	assert.Equal(t, 2, adapter.CallCount(), "a cleared queue starts nothing")
}

func queuedNames(e *Engine) []string {
	var names []string
	for _, f := range e.Queue() {
		names = append(names, f.Name)
	}
	return names
}

func TestProcessQueue_KeepsFilesQueuedDuringRun(t *testing.T) {
	gate := make(chan struct{})
	adapter := testutil.NewScriptedAdapter().On("a.csv", testutil.Script{Gate: gate})
	e := newEngine(t, adapter, Options{QueueMode: true})

	_, err := e.SubmitFiles(context.Background(), []*models.File{testutil.Sized("a.csv", 1)}, nil)
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() { firstDone <- e.ProcessQueue(context.Background()) }()
	require.Eventually(t, func() bool { return adapter.CallCount() == 1 }, time.Second, 5*time.Millisecond)

	_, err = e.SubmitFiles(context.Background(), []*models.File{testutil.Sized("b.csv", 1)}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv", "b.csv"}, queuedNames(e))

	close(gate)
	require.NoError(t, <-firstDone)

	assert.Equal(t, []string{"b.csv"}, queuedNames(e))
	assert.Equal(t, models.StatusUploading, byName(t, e, "b.csv").Status)

	require.NoError(t, e.ProcessQueue(context.Background()))
	assert.Empty(t, e.Queue())
	assert.Equal(t, []string{"a.csv", "b.csv"}, adapter.Calls())
	assert.Equal(t, models.StatusCompleted, byName(t, e, "b.csv").Status)
}

func TestProcessQueue_ConcurrentCallWaitsForRunningFiles(t *testing.T) {
	gate := make(chan struct{})
	adapter := testutil.NewScriptedAdapter().On("a.csv", testutil.Script{Gate: gate})
	e := newEngine(t, adapter, Options{QueueMode: true})

	_, err := e.SubmitFiles(context.Background(), []*models.File{testutil.Sized("a.csv", 1)}, nil)
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() { firstDone <- e.ProcessQueue(context.Background()) }()
	require.Eventually(t, func() bool { return adapter.CallCount() == 1 }, time.Second, 5*time.Millisecond)

	secondDone := make(chan error, 1)
	go func() { secondDone <- e.ProcessQueue(context.Background()) }()

	select {
	case <-secondDone:
		t.Fatal("second ProcessQueue returned while a.csv was still transferring")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, []string{"a.csv"}, queuedNames(e))

	close(gate)
	require.NoError(t, <-secondDone)
	require.NoError(t, <-firstDone)

	assert.Empty(t, e.Queue())
	assert.Equal(t, 1, adapter.CallCount())
	assert.Equal(t, models.StatusCompleted, byName(t, e, "a.csv").Status)
}

func TestProcessQueue_ConcurrentCallHonoursContext(t *testing.T) {
	gate := make(chan struct{})
	adapter := testutil.NewScriptedAdapter().On("a.csv", testutil.Script{Gate: gate})
	e := newEngine(t, adapter, Options{QueueMode: true})

	_, err := e.SubmitFiles(context.Background(), []*models.File{testutil.Sized("a.csv", 1)}, nil)
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() { firstDone <- e.ProcessQueue(context.Background()) }()
	require.Eventually(t, func() bool { return adapter.CallCount() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.ProcessQueue(ctx), context.DeadlineExceeded)

	close(gate)
	require.NoError(t, <-firstDone)
	assert.Empty(t, e.Queue())
}

func TestWait_CountsTransfersBeforeNotifying(t *testing.T) {
	gate := make(chan struct{})
	adapter := testutil.NewScriptedAdapter().On("slow.csv", testutil.Script{Gate: gate})

	var (
		once sync.Once
		e    *Engine
	)
	waitDone := make(chan struct{})
	e = newEngine(t, adapter, Options{
		OnChange: func(State) {
			once.Do(func() {
				go func() {
					e.Wait()
					close(waitDone)
				}()
				time.Sleep(10 * time.Millisecond)
			})
		},
	})

	_, err := e.SubmitFiles(context.Background(), []*models.File{testutil.Sized("slow.csv", 1)}, nil)
	require.NoError(t, err)

	select {
	case <-waitDone:
		t.Fatal("Wait returned before the submitted transfer finished")
	case <-time.After(30 * time.Millisecond):
	}

	close(gate)
	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the transfer finished")
	}
	assert.Equal(t, models.StatusCompleted, byName(t, e, "slow.csv").Status)
}

func TestOnChange_CallsDoNotOverlap(t *testing.T) {
	adapter := testutil.NewScriptedAdapter()
	files := make([]*models.File, 20)
	for i := range files {
		files[i] = testutil.Sized(string(rune('a'+i))+".csv", 1)
	}

	var (
		active, peak atomic.Int32
		mu           sync.Mutex
		completes    []int
	)
	e := newEngine(t, adapter, Options{
		OnChange: func(st State) {
			n := active.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			mu.Lock()
			completes = append(completes, st.CompleteCount)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			active.Add(-1)
		},
	})

	_, err := e.SubmitFiles(context.Background(), files, nil)
	require.NoError(t, err)
	e.Wait()

	assert.Equal(t, int32(1), peak.Load())
	mu.Lock()
	defer mu.Unlock()
	assert.IsNonDecreasing(t, completes)
	assert.Equal(t, 20, completes[len(completes)-1])
}

func TestRealtime_TwoPhaseProgress(t *testing.T) {
	hub := realtime.NewHub()
	adapter := testutil.NewScriptedAdapter().
		On("scan.pdf", testutil.Script{Steps: []int{0, 20, 50}, ID: "f1"})

	var autoCloses atomic.Int32
	e := newEngine(t, adapter, Options{
		Realtime:    hub,
		OnAutoClose: func() { autoCloses.Add(1) },
	})

	_, err := e.SubmitFiles(context.Background(), []*models.File{testutil.Sized("scan.pdf", 100)}, nil)
	require.NoError(t, err)
	e.Wait()

	rec := byName(t, e, "scan.pdf")
	assert.Equal(t, models.StatusProcessing, rec.Status)
	assert.Equal(t, 50, rec.Progress)
	assert.Equal(t, "f1", rec.ID)

	publish(t, hub, models.ProcessingEvent{Type: models.EventProgress, ID: "f1", Progress: 40})
	assert.Equal(t, 70, byName(t, e, "scan.pdf").Progress)

	publish(t, hub, models.ProcessingEvent{Type: models.EventProgress, ID: "f1", Progress: 20})
	assert.Equal(t, 70, byName(t, e, "scan.pdf").Progress, "progress never decreases")

	publish(t, hub, models.ProcessingEvent{Type: models.EventComplete, ID: "f1"})
	rec = byName(t, e, "scan.pdf")
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, 100, rec.Progress)
	assert.EqualValues(t, 1, autoCloses.Load())
	assert.False(t, e.Open())

	publish(t, hub, models.ProcessingEvent{Type: models.EventError, ID: "f1", Message: "late"})
	assert.Equal(t, models.StatusCompleted, byName(t, e, "scan.pdf").Status, "terminal states absorb")
}

func TestRealtime_ClampsTransferPhase(t *testing.T) {
	hub := realtime.NewHub()
	gate := make(chan struct{})
	adapter := testutil.NewScriptedAdapter().
		On("big.bin", testutil.Script{Steps: []int{40, 90, 120}, ID: "f2", Gate: gate})
	e := newEngine(t, adapter, Options{Realtime: hub})

	_, err := e.SubmitFiles(context.Background(), []*models.File{testutil.Sized("big.bin", 10)}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return byName(t, e, "big.bin").Progress == 50 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.StatusUploading, byName(t, e, "big.bin").Status)

	close(gate)
	e.Wait()
	assert.Equal(t, models.StatusProcessing, byName(t, e, "big.bin").Status)
}

func TestRealtime_ErrorFailsRecord(t *testing.T) {
	hub := realtime.NewHub()
	adapter := testutil.NewScriptedAdapter().On("x.csv", testutil.Script{ID: "f3"})
	var autoCloses atomic.Int32
	e := newEngine(t, adapter, Options{Realtime: hub, OnAutoClose: func() { autoCloses.Add(1) }})

	_, err := e.SubmitFiles(context.Background(), []*models.File{testutil.Sized("x.csv", 1)}, nil)
	require.NoError(t, err)
	e.Wait()

	publish(t, hub, models.ProcessingEvent{Type: models.EventError, ID: "f3", Message: "corrupt archive"})

	rec := byName(t, e, "x.csv")
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Equal(t, "corrupt archive", rec.StatusMessage)
	assert.Equal(t, 1, e.State().ErrorCount)
	assert.Zero(t, autoCloses.Load())
}

func TestRealtime_EarlyEventsAreReplayed(t *testing.T) {
	hub := realtime.NewHub()
	gate := make(chan struct{})
	adapter := testutil.NewScriptedAdapter().On("fast.csv", testutil.Script{ID: "f4", Gate: gate})
	e := newEngine(t, adapter, Options{Realtime: hub})

	_, err := e.SubmitFiles(context.Background(), []*models.File{testutil.Sized("fast.csv", 1)}, nil)
	require.NoError(t, err)

	publish(t, hub, models.ProcessingEvent{Type: models.EventProgress, ID: "f4", Progress: 60})
	publish(t, hub, models.ProcessingEvent{Type: models.EventComplete, ID: "f4"})
	publish(t, hub, models.ProcessingEvent{Type: models.EventComplete, ID: "someone-else"})
	assert.Equal(t, models.StatusUploading, byName(t, e, "fast.csv").Status)

	close(gate)
	e.Wait()

	rec := byName(t, e, "fast.csv")
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, 100, rec.Progress)
}

func TestClose_KeepsOnlyProcessing(t *testing.T) {
	hub := realtime.NewHub()
	gate := make(chan struct{})
	adapter := testutil.NewScriptedAdapter().
		On("processing.csv", testutil.Script{ID: "p1"}).
		On("failed.csv", testutil.Script{Err: errors.New("boom")}).
		On("slow.csv", testutil.Script{ID: "s1", Gate: gate})
	e := newEngine(t, adapter, Options{Realtime: hub})

	_, err := e.SubmitFiles(context.Background(), []*models.File{
		testutil.Sized("processing.csv", 1),
		testutil.Sized("failed.csv", 1),
		testutil.Sized("slow.csv", 1),
		testutil.Sized("rejected.exe", 1),
	}, []string{"rejected.exe"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st := e.State()
		return st.ErrorCount == 2 && byName(t, e, "processing.csv").Status == models.StatusProcessing
	}, time.Second, 5*time.Millisecond)

	e.Close()

	visible := e.Snapshot()
	require.Len(t, visible, 1)
	assert.Equal(t, "processing.csv", visible[0].Name)
	assert.False(t, e.Open())

	// The hidden transfer keeps running and updates its record out of view.
	close(gate)
	e.Wait()
	publish(t, hub, models.ProcessingEvent{Type: models.EventComplete, ID: "s1"})
	assert.Len(t, e.Snapshot(), 1)

	publish(t, hub, models.ProcessingEvent{Type: models.EventComplete, ID: "p1"})
	assert.Equal(t, models.StatusCompleted, e.Snapshot()[0].Status)
}

func TestAutoClose(t *testing.T) {
	disabled := false

	tests := []struct {
		name    string
		policy  validation.Policy
		script  *testutil.Script
		want    int32
		wantErr int
	}{
		{name: "fires once when all succeed", want: 1},
		{name: "never fires with a failure", script: &testutil.Script{Err: errors.New("nope")}, wantErr: 1},
		{name: "disabled by policy", policy: validation.Policy{AutoClose: &disabled}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := testutil.NewScriptedAdapter()
			if tt.script != nil {
				adapter.On("b.csv", *tt.script)
			}

			var fired atomic.Int32
			e := newEngine(t, adapter, Options{Policy: tt.policy, OnAutoClose: func() { fired.Add(1) }})

			_, err := e.SubmitFiles(context.Background(),
				[]*models.File{testutil.Sized("a.csv", 1), testutil.Sized("b.csv", 1), testutil.Sized("c.csv", 1)}, nil)
			require.NoError(t, err)
			e.Wait()

			assert.Equal(t, tt.want, fired.Load())
			assert.Equal(t, tt.wantErr, e.State().ErrorCount)
			assert.Equal(t, tt.want == 1, e.State().ShouldAutoClose)
		})
	}
}

func TestSubmitFiles_NTransfers(t *testing.T) {
	adapter := testutil.NewScriptedAdapter()
	e := newEngine(t, adapter, Options{})

	files := make([]*models.File, 12)
	for i := range files {
		files[i] = testutil.Sized(string(rune('a'+i))+".log", 5)
	}

	_, err := e.SubmitFiles(context.Background(), files, nil)
	require.NoError(t, err)
	e.Wait()

	assert.Equal(t, 12, adapter.CallCount())
	assert.Equal(t, 12, e.State().CompleteCount)
}

func TestSubmitFiles_FailureIsIsolated(t *testing.T) {
	adapter := testutil.NewScriptedAdapter().
		On("b.csv", testutil.Script{Steps: []int{10}, Err: errors.New("server responded 500")})
	e := newEngine(t, adapter, Options{})

	_, err := e.SubmitFiles(context.Background(),
		[]*models.File{testutil.Sized("a.csv", 1), testutil.Sized("b.csv", 1), testutil.Sized("c.csv", 1)}, nil)
	require.NoError(t, err)
	e.Wait()

	assert.Equal(t, []models.Status{models.StatusCompleted, models.StatusFailed, models.StatusCompleted}, statuses(e.Snapshot()))
	assert.Equal(t, "server responded 500", byName(t, e, "b.csv").StatusMessage)
}

func TestSubmitFiles_MaxConcurrent(t *testing.T) {
	gate := make(chan struct{})
	adapter := testutil.NewScriptedAdapter()
	files := make([]*models.File, 5)
	for i := range files {
		name := string(rune('a'+i)) + ".bin"
		adapter.On(name, testutil.Script{Gate: gate})
		files[i] = testutil.Sized(name, 1)
	}
	e := newEngine(t, adapter, Options{MaxConcurrent: 2})

	_, err := e.SubmitFiles(context.Background(), files, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return adapter.CallCount() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, adapter.CallCount())

	close(gate)
	e.Wait()
	assert.Equal(t, 5, adapter.CallCount())
	assert.Equal(t, 2, adapter.Peak())
}

func TestSubmitFiles_TooManyFiles(t *testing.T) {
	adapter := testutil.NewScriptedAdapter()
	e := newEngine(t, adapter, Options{Policy: validation.Policy{MaxFileCount: 2}})

	_, err := e.SubmitFiles(context.Background(),
		[]*models.File{testutil.Sized("a", 1), testutil.Sized("b", 1), testutil.Sized("c", 1)}, nil)
	assert.ErrorIs(t, err, ErrTooManyFiles)
	assert.Empty(t, e.Snapshot())
	assert.False(t, e.Open())
	assert.Zero(t, adapter.CallCount())
}

func TestSubmitFiles_SizeBoundary(t *testing.T) {
	adapter := testutil.NewScriptedAdapter()
	e := newEngine(t, adapter, Options{Policy: validation.Policy{MaxFileSize: 1000}})

	recs, err := e.SubmitFiles(context.Background(),
		[]*models.File{testutil.Sized("at.bin", 1000), testutil.Sized("under.bin", 999)}, nil)
	require.NoError(t, err)
	assert.Equal(t, []models.Status{models.StatusExceded, models.StatusUploading}, statuses(recs))
}

func TestSubmitFiles_ReplacesBatch(t *testing.T) {
	adapter := testutil.NewScriptedAdapter()
	e := newEngine(t, adapter, Options{UserID: "u1", UserEmail: "u1@example.com"})

	_, err := e.SubmitFiles(context.Background(), []*models.File{testutil.Sized("first.csv", 1)}, nil)
	require.NoError(t, err)
	e.Wait()

	recs, err := e.SubmitFiles(context.Background(), []*models.File{testutil.Sized("second.csv", 1)}, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "second.csv", recs[0].Name)
	assert.Equal(t, "u1", recs[0].UserID)
	assert.Equal(t, "u1@example.com", recs[0].UserEmail)
	assert.True(t, e.Open())
}

func TestProgress_IsMonotonic(t *testing.T) {
	adapter := testutil.NewScriptedAdapter().
		On("wobbly.csv", testutil.Script{Steps: []int{30, 10, 60, -5, 40, 90}})

	var (
		mu   sync.Mutex
		seen []int
		e    *Engine
	)
	e = newEngine(t, adapter, Options{
		OnChange: func(State) {
			for _, r := range e.Snapshot() {
				mu.Lock()
				seen = append(seen, r.Progress)
				mu.Unlock()
			}
		},
	})

	_, err := e.SubmitFiles(context.Background(), []*models.File{testutil.Sized("wobbly.csv", 1)}, nil)
	require.NoError(t, err)
	e.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.IsNonDecreasing(t, seen)
	assert.Equal(t, 100, seen[len(seen)-1])
}

// validatingAdapter rejects .exe files at the backend level.
type validatingAdapter struct {
	*testutil.ScriptedAdapter
}

func (validatingAdapter) ValidateFile(file *models.File, _ validation.Policy) validation.Result {
	if validation.Extension(file.Name) == "exe" {
		return validation.Reject(models.StatusFileType, "executables are not stored")
	}
	return validation.Accept()
}

func TestSubmitFiles_BackendValidator(t *testing.T) {
	scripted := testutil.NewScriptedAdapter()
	e, err := New(validatingAdapter{scripted}, Options{Logger: logging.Discard()})
	require.NoError(t, err)

	recs, err := e.SubmitFiles(context.Background(),
		[]*models.File{testutil.Sized("tool.exe", 1), testutil.Sized("notes.txt", 1)}, nil)
	require.NoError(t, err)
	e.Wait()

	assert.Equal(t, models.StatusFileType, recs[0].Status)
	assert.Equal(t, "executables are not stored", recs[0].StatusMessage)
	assert.Equal(t, []string{"notes.txt"}, scripted.Calls())
}

// countingChannel records lifecycle calls.
type countingChannel struct {
	realtime.Hub
	starts, stops int
}

func (c *countingChannel) Start(ctx context.Context) error {
	c.starts++
	return c.Hub.Start(ctx)
}

func (c *countingChannel) Stop() error {
	c.stops++
	return c.Hub.Stop()
}

func TestDispose_StopsOnce(t *testing.T) {
	ch := &countingChannel{}
	e, err := New(testutil.NewScriptedAdapter(), Options{Realtime: ch, Logger: logging.Discard()})
	require.NoError(t, err)

	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Dispose())
	require.NoError(t, e.Dispose())

	assert.Equal(t, 1, ch.starts)
	assert.Equal(t, 1, ch.stops)
	assert.Error(t, e.Start(context.Background()))
}
