// Package upload orchestrates batches of file transfers: validation, concurrent
// transfers through a storage adapter, and the merge of transfer and server-side
// processing progress into one record per file.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/plc-visualizer/uploader/internal/logging"
	"github.com/plc-visualizer/uploader/internal/models"
	"github.com/plc-visualizer/uploader/internal/realtime"
	"github.com/plc-visualizer/uploader/internal/storage"
	"github.com/plc-visualizer/uploader/internal/validation"
	"golang.org/x/sync/errgroup"
)

// transferCeiling is where the transfer phase ends when a realtime channel
// reports the processing phase.
const transferCeiling = 50

var (
	// ErrNilAdapter is returned by New without a storage adapter.
	ErrNilAdapter = errors.New("upload: storage adapter is required")

	// ErrTooManyFiles is returned by SubmitFiles when the batch exceeds
	// Policy.MaxFileCount. Nothing is changed.
	ErrTooManyFiles = errors.New("upload: too many files")
)

// Options configures an Engine.
type Options struct {
	Policy    validation.Policy
	QueueMode bool

	// MaxConcurrent caps simultaneous transfers per dispatch; 0 means unbounded.
	MaxConcurrent int

	// Realtime is optional. When set, transfers end at 50% and the channel
	// drives the rest.
	Realtime realtime.Adapter

	UserID    string
	UserEmail string

	// OnChange receives the latest state after mutations. It may run on any
	// goroutine but calls never overlap, and a state older than one already
	// delivered is skipped. It may read the engine but must not mutate it.
	OnChange func(State)

	// OnAutoClose fires each time the batch becomes fully and successfully settled.
	OnAutoClose func()

	Logger *slog.Logger
}

// State is the derived view of the visible batch.
type State struct {
	Total           int
	ErrorCount      int
	CompleteCount   int
	ShouldAutoClose bool
	Open            bool
	QueueLen        int
}

// Settled reports whether every visible record is terminal.
func (s State) Settled() bool {
	return s.ErrorCount+s.CompleteCount == s.Total
}

type queuedFile struct {
	key  string
	file *models.File
}

// Engine owns one upload batch at a time.
type Engine struct {
	adapter   storage.Adapter
	validator storage.Validator
	rt        realtime.Adapter
	opts      Options
	log       *slog.Logger

	mu        sync.Mutex
	store     *recordStore
	queue     []queuedFile
	queueRuns map[string]chan struct{} // queued key -> done of the ProcessQueue transferring it
	open      bool
	autoClose bool
	seq       uint64

	notifyMu     sync.Mutex
	lastNotified uint64

	wg sync.WaitGroup

	lifecycleMu sync.Mutex
	unsubscribe func()
	disposed    bool
}

// New creates an engine around adapter.
func New(adapter storage.Adapter, opts Options) (*Engine, error) {
	if adapter == nil {
		return nil, ErrNilAdapter
	}
	if opts.MaxConcurrent < 0 {
		return nil, fmt.Errorf("upload: invalid MaxConcurrent %d", opts.MaxConcurrent)
	}

	log := opts.Logger
	if log == nil {
		log = logging.Logger
	}

	e := &Engine{
		adapter: adapter,
		rt:      opts.Realtime,
		opts:    opts,
		log:     log.With("component", "upload"),
		store:   newRecordStore(),

		queueRuns: make(map[string]chan struct{}),
	}
	if v, ok := adapter.(storage.Validator); ok {
		e.validator = v
	}
	return e, nil
}

// Start subscribes to the realtime channel and starts it. Without a channel it
// does nothing.
func (e *Engine) Start(ctx context.Context) error {
	if e.rt == nil {
		return nil
	}

	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.disposed {
		return errors.New("upload: engine disposed")
	}
	if e.unsubscribe != nil {
		return nil
	}

	unsubscribe := e.rt.Subscribe(realtime.Handlers{
		OnProgress: e.onServerProgress,
		OnComplete: e.onServerComplete,
		OnError:    e.onServerError,
	})
	if err := e.rt.Start(ctx); err != nil {
		unsubscribe()
		return fmt.Errorf("starting realtime channel: %w", err)
	}
	e.unsubscribe = unsubscribe
	return nil
}

// Dispose unsubscribes and stops the realtime channel. Only the first call has
// an effect. In-flight transfers are not cancelled.
func (e *Engine) Dispose() error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.disposed {
		return nil
	}
	e.disposed = true

	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	if e.rt != nil {
		if err := e.rt.Stop(); err != nil {
			return fmt.Errorf("stopping realtime channel: %w", err)
		}
	}
	return nil
}

// SubmitFiles validates files, replaces the visible batch and returns it. Accepted
// files are transferred in the background, or queued in queue mode.
func (e *Engine) SubmitFiles(ctx context.Context, files []*models.File, existingNames []string) ([]models.FileRecord, error) {
	if limit := e.opts.Policy.MaxFileCount; limit > 0 && len(files) > limit {
		return nil, fmt.Errorf("%w: %d files, at most %d allowed", ErrTooManyFiles, len(files), limit)
	}

	now := time.Now()
	records := make([]models.FileRecord, 0, len(files))
	accepted := make([]queuedFile, 0, len(files))

	for _, f := range files {
		res := validation.Evaluate(f, e.opts.Policy, existingNames)
		if res.Accepted && e.validator != nil {
			res = e.validator.ValidateFile(f, e.opts.Policy)
		}

		rec := models.FileRecord{
			Key:       uuid.NewString(),
			Name:      f.Name,
			Size:      f.Size,
			MimeType:  f.MimeType,
			Status:    models.StatusUploading,
			UserID:    e.opts.UserID,
			UserEmail: e.opts.UserEmail,
			CreatedAt: now,
		}
		if !res.Accepted {
			rec.Status = res.Reason
			rec.StatusMessage = res.Message
			e.log.Debug("file rejected", "name", f.Name, "reason", res.Reason)
		} else {
			accepted = append(accepted, queuedFile{key: rec.Key, file: f})
		}
		records = append(records, rec)
	}

	e.mu.Lock()
	e.store.replace(records)
	e.open = true
	if e.opts.QueueMode {
		e.queue = append(e.queue, accepted...)
		accepted = nil
	} else {
		accepted = e.claim(accepted)
	}
	snapshot := e.store.snapshot()
	if len(accepted) > 0 {
		e.wg.Add(1)
	}
	e.commitLocked()

	e.log.Info("batch submitted", "files", len(files), "accepted", len(snapshot)-countRejected(snapshot), "queue_mode", e.opts.QueueMode)

	if len(accepted) > 0 {
		go func() {
			defer e.wg.Done()
			e.transferAll(ctx, accepted)
		}()
	}
	return snapshot, nil
}

// ProcessQueue transfers every queued file whose record is still waiting and
// blocks until the files queued at the time of the call settle, including those
// a concurrent call is already transferring. Those files then leave the queue
// whatever the outcome. Files queued meanwhile stay for the next call.
func (e *Engine) ProcessQueue(ctx context.Context) error {
	e.mu.Lock()
	if len(e.queue) == 0 {
		e.mu.Unlock()
		return nil
	}

	others := make(map[chan struct{}]struct{})
	for _, q := range e.queue {
		if ch, ok := e.queueRuns[q.key]; ok {
			others[ch] = struct{}{}
		}
	}
	taken := make([]queuedFile, len(e.queue))
	copy(taken, e.queue)

	items := e.claim(taken)
	done := make(chan struct{})
	for _, it := range items {
		e.queueRuns[it.key] = done
	}
	e.wg.Add(1)
	e.mu.Unlock()

	e.transferAll(ctx, items)
	e.wg.Done()

	e.mu.Lock()
	e.dequeueLocked(taken, done)
	close(done)
	e.commitLocked()

	for ch := range others {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// dequeueLocked drops taken files from the queue, except those another
// ProcessQueue call is still transferring.
func (e *Engine) dequeueLocked(taken []queuedFile, run chan struct{}) {
	drop := make(map[string]bool, len(taken))
	for _, q := range taken {
		if ch, ok := e.queueRuns[q.key]; ok && ch != run {
			continue
		}
		drop[q.key] = true
		delete(e.queueRuns, q.key)
	}

	kept := e.queue[:0]
	for _, q := range e.queue {
		if !drop[q.key] {
			kept = append(kept, q)
		}
	}
	clear(e.queue[len(kept):])
	e.queue = kept
}

// Close dismisses the batch: only records still processing stay visible. Running
// transfers continue against their hidden records.
func (e *Engine) Close() {
	e.mu.Lock()
	e.store.keepVisible(func(rec models.FileRecord) bool {
		return rec.Status == models.StatusProcessing
	})
	e.open = false
	e.commitLocked()
}

// Wait blocks until every transfer started so far has returned from the adapter.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Snapshot returns a copy of the visible records in submission order.
func (e *Engine) Snapshot() []models.FileRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.snapshot()
}

// State returns the derived batch state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Queue returns the files waiting for ProcessQueue.
func (e *Engine) Queue() []*models.File {
	e.mu.Lock()
	defer e.mu.Unlock()

	files := make([]*models.File, len(e.queue))
	for i, q := range e.queue {
		files[i] = q.file
	}
	return files
}

// Open reports whether a batch is being shown.
func (e *Engine) Open() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// claim marks items as started and returns those that may be transferred.
func (e *Engine) claim(items []queuedFile) []queuedFile {
	out := make([]queuedFile, 0, len(items))
	for _, it := range items {
		if e.store.markStarted(it.key) {
			out = append(out, it)
		}
	}
	return out
}

func (e *Engine) transferAll(ctx context.Context, items []queuedFile) {
	g := new(errgroup.Group)
	if e.opts.MaxConcurrent > 0 {
		g.SetLimit(e.opts.MaxConcurrent)
	}
	for _, it := range items {
		g.Go(func() error {
			e.transfer(ctx, it)
			return nil
		})
	}
	g.Wait()
}

func (e *Engine) transfer(ctx context.Context, it queuedFile) {
	id, err := e.adapter.Upload(ctx, it.file, func(pct int) {
		e.onTransferProgress(it.key, pct)
	})
	if err != nil {
		e.log.Warn("transfer failed", "name", it.file.Name, "error", err)
		e.mutate(it.key, func(rec *models.FileRecord) bool {
			if rec.Status.IsTerminal() {
				return false
			}
			rec.Status = models.StatusFailed
			rec.StatusMessage = err.Error()
			return true
		})
		return
	}

	e.onTransferDone(it.key, id)
}

func (e *Engine) onTransferProgress(key string, pct int) {
	limit := 100
	if e.rt != nil {
		limit = transferCeiling
	}
	pct = clamp(pct, 0, limit)

	e.mutate(key, func(rec *models.FileRecord) bool {
		if rec.Status != models.StatusUploading || pct <= rec.Progress {
			return false
		}
		rec.Progress = pct
		return true
	})
}

func (e *Engine) onTransferDone(key, id string) {
	e.mu.Lock()
	changed := e.store.update(key, func(rec *models.FileRecord) bool {
		if rec.Status != models.StatusUploading {
			return false
		}
		rec.ID = id
		if e.rt == nil {
			rec.Status = models.StatusCompleted
			rec.Progress = 100
			return true
		}
		rec.Status = models.StatusProcessing
		rec.Progress = max(rec.Progress, transferCeiling)
		return true
	})

	if changed && e.rt != nil {
		for _, ev := range e.store.alias(key, id) {
			e.applyServerEventLocked(key, ev)
		}
	}

	if changed {
		e.commitLocked()
	} else {
		e.mu.Unlock()
	}
}

func (e *Engine) onServerProgress(id string, pct int) {
	e.onServerEvent(models.ProcessingEvent{Type: models.EventProgress, ID: id, Progress: pct})
}

func (e *Engine) onServerComplete(id string) {
	e.onServerEvent(models.ProcessingEvent{Type: models.EventComplete, ID: id})
}

func (e *Engine) onServerError(id, reason string) {
	e.onServerEvent(models.ProcessingEvent{Type: models.EventError, ID: id, Message: reason})
}

func (e *Engine) onServerEvent(ev models.ProcessingEvent) {
	e.mu.Lock()
	key, ok := e.store.lookup(ev.ID)
	if !ok {
		e.store.buffer(ev)
		e.mu.Unlock()
		return
	}
	if e.applyServerEventLocked(key, ev) {
		e.commitLocked()
		return
	}
	e.mu.Unlock()
}

// applyServerEventLocked merges one processing event. Only processing records
// are affected.
func (e *Engine) applyServerEventLocked(key string, ev models.ProcessingEvent) bool {
	return e.store.update(key, func(rec *models.FileRecord) bool {
		if rec.Status != models.StatusProcessing {
			return false
		}
		switch ev.Type {
		case models.EventProgress:
			p := transferCeiling + clamp(ev.Progress, 0, 100)/2
			if p <= rec.Progress {
				return false
			}
			rec.Progress = p
		case models.EventComplete:
			rec.Status = models.StatusCompleted
			rec.Progress = 100
		case models.EventError:
			rec.Status = models.StatusFailed
			rec.StatusMessage = ev.Message
			if rec.StatusMessage == "" {
				rec.StatusMessage = "processing failed"
			}
		default:
			return false
		}
		return true
	})
}

// mutate applies fn to the record under key and publishes the new state.
func (e *Engine) mutate(key string, fn func(rec *models.FileRecord) bool) {
	e.mu.Lock()
	if !e.store.update(key, fn) {
		e.mu.Unlock()
		return
	}
	e.commitLocked()
}

func (e *Engine) stateLocked() State {
	total, errs, complete := e.store.counts()
	return State{
		Total:           total,
		ErrorCount:      errs,
		CompleteCount:   complete,
		ShouldAutoClose: errs+complete == total && errs == 0 && total > 0 && e.opts.Policy.AutoCloseEnabled(),
		Open:            e.open,
		QueueLen:        len(e.queue),
	}
}

// commitLocked recomputes the derived state, releases e.mu and runs callbacks.
func (e *Engine) commitLocked() {
	st := e.stateLocked()
	fireAutoClose := st.ShouldAutoClose && !e.autoClose
	e.autoClose = st.ShouldAutoClose
	if fireAutoClose {
		e.open = false
		st.Open = false
	}
	e.seq++
	seq := e.seq
	e.mu.Unlock()

	if e.opts.OnChange != nil {
		e.notifyMu.Lock()
		if seq > e.lastNotified {
			e.lastNotified = seq
			e.opts.OnChange(st)
		}
		e.notifyMu.Unlock()
	}
	if fireAutoClose {
		e.log.Info("batch settled", "completed", st.CompleteCount)
		if e.opts.OnAutoClose != nil {
			e.opts.OnAutoClose()
		}
	}
}

func countRejected(recs []models.FileRecord) int {
	n := 0
	for _, r := range recs {
		if r.Status.IsError() {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
