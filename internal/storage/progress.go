package storage

import (
	"io"
	"sync"
)

// progressTracker maps transferred bytes onto the [lo,hi] percentage range and only
// reports when the integer percentage grows.
type progressTracker struct {
	mu     sync.Mutex
	total  int64
	done   int64
	lo, hi int
	last   int
	report ProgressFunc
}

func newProgressTracker(total int64, lo, hi int, report ProgressFunc) *progressTracker {
	return &progressTracker{total: total, lo: lo, hi: hi, last: -1, report: report}
}

// Add records n more transferred bytes.
func (p *progressTracker) Add(n int64) {
	if p == nil || p.report == nil {
		return
	}
	p.mu.Lock()
	p.done += n
	pct := p.hi
	if p.total > 0 {
		done := p.done
		if done > p.total {
			done = p.total
		}
		pct = p.lo + int(done*int64(p.hi-p.lo)/p.total)
	}
	if pct <= p.last {
		p.mu.Unlock()
		return
	}
	p.last = pct
	p.mu.Unlock()
	p.report(pct)
}

// Start reports the lower bound once.
func (p *progressTracker) Start() {
	p.Add(0)
}

// Read lets the tracker act as a progress sink for libraries that "read" the
// number of bytes they uploaded (minio-go's PutObjectOptions.Progress).
func (p *progressTracker) Read(b []byte) (int, error) {
	p.Add(int64(len(b)))
	return len(b), nil
}

// countingReader feeds every read into a tracker.
type countingReader struct {
	r       io.Reader
	tracker *progressTracker
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	if n > 0 {
		c.tracker.Add(int64(n))
	}
	return n, err
}
