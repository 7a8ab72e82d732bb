package upload

import (
	"github.com/plc-visualizer/uploader/internal/models"
)

// maxPendingEvents bounds realtime events held for ids not yet known.
const maxPendingEvents = 1024

type entry struct {
	rec     models.FileRecord
	started bool
}

// recordStore is the engine's file lifecycle store. Records are addressed by
// their batch-local key; adapter ids are aliases registered once a transfer
// completes. Records dropped from the visible list stay addressable while their
// transfer is still running. Not safe for concurrent use; the engine locks.
type recordStore struct {
	entries map[string]*entry
	visible []string
	byID    map[string]string
	pending []models.ProcessingEvent
}

func newRecordStore() *recordStore {
	return &recordStore{
		entries: make(map[string]*entry),
		byID:    make(map[string]string),
	}
}

// replace makes recs the visible list. Hidden records that are already terminal
// are forgotten.
func (s *recordStore) replace(recs []models.FileRecord) {
	for key, e := range s.entries {
		if e.rec.Status.IsTerminal() {
			s.forget(key)
		}
	}

	s.visible = make([]string, 0, len(recs))
	for _, rec := range recs {
		s.entries[rec.Key] = &entry{rec: rec}
		s.visible = append(s.visible, rec.Key)
	}
}

// keepVisible reduces the visible list to records matching keep.
func (s *recordStore) keepVisible(keep func(models.FileRecord) bool) {
	kept := s.visible[:0]
	for _, key := range s.visible {
		e := s.entries[key]
		if keep(e.rec) {
			kept = append(kept, key)
			continue
		}
		if e.rec.Status.IsTerminal() {
			s.forget(key)
		}
	}
	s.visible = kept
}

func (s *recordStore) forget(key string) {
	if e, ok := s.entries[key]; ok && e.rec.ID != "" {
		delete(s.byID, e.rec.ID)
	}
	delete(s.entries, key)
}

func (s *recordStore) isVisible(key string) bool {
	for _, k := range s.visible {
		if k == key {
			return true
		}
	}
	return false
}

// update replaces the record under key with fn's result. fn returns false to
// leave the record unchanged. It reports whether a change was made.
func (s *recordStore) update(key string, fn func(rec *models.FileRecord) bool) bool {
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	next := e.rec
	if !fn(&next) {
		return false
	}
	e.rec = next

	if next.Status.IsTerminal() && !s.isVisible(key) {
		s.forget(key)
	}
	return true
}

// markStarted flags a record as handed to the adapter. It reports false when
// the record is gone, no longer uploading, or already started.
func (s *recordStore) markStarted(key string) bool {
	e, ok := s.entries[key]
	if !ok || e.started || e.rec.Status != models.StatusUploading {
		return false
	}
	e.started = true
	return true
}

// alias registers id for key and returns buffered events for id.
func (s *recordStore) alias(key, id string) []models.ProcessingEvent {
	s.byID[id] = key

	var matched []models.ProcessingEvent
	rest := s.pending[:0]
	for _, ev := range s.pending {
		if ev.ID == id {
			matched = append(matched, ev)
		} else {
			rest = append(rest, ev)
		}
	}
	s.pending = rest
	return matched
}

// lookup resolves an adapter id to a key.
func (s *recordStore) lookup(id string) (string, bool) {
	key, ok := s.byID[id]
	return key, ok
}

// buffer holds an event for an id that is not registered yet, dropping the
// oldest when full.
func (s *recordStore) buffer(ev models.ProcessingEvent) {
	if len(s.pending) >= maxPendingEvents {
		s.pending = append(s.pending[:0], s.pending[1:]...)
	}
	s.pending = append(s.pending, ev)
}

// snapshot copies the visible records in order.
func (s *recordStore) snapshot() []models.FileRecord {
	out := make([]models.FileRecord, 0, len(s.visible))
	for _, key := range s.visible {
		out = append(out, s.entries[key].rec)
	}
	return out
}

// counts derives the aggregate numbers over the visible records.
func (s *recordStore) counts() (total, errs, complete int) {
	for _, key := range s.visible {
		st := s.entries[key].rec.Status
		switch {
		case st == models.StatusCompleted:
			complete++
		case st.IsError():
			errs++
		}
	}
	return len(s.visible), errs, complete
}
