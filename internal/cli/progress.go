package cli

import (
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/plc-visualizer/uploader/internal/models"
)

// progressPrinter writes a line whenever a record changes status or crosses a
// tenth of its progress.
type progressPrinter struct {
	w    io.Writer
	mu   sync.Mutex
	seen map[string]printedState
}

type printedState struct {
	status models.Status
	bucket int
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, seen: make(map[string]printedState)}
}

func (p *progressPrinter) update(recs []models.FileRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, rec := range recs {
		now := printedState{status: rec.Status, bucket: rec.Progress / 10}
		if prev, ok := p.seen[rec.Key]; ok && prev == now {
			continue
		}
		p.seen[rec.Key] = now
		fmt.Fprintf(p.w, "%-40s %3d%%  %s\n", rec.Name, rec.Progress, rec.Status)
	}
}

func (p *progressPrinter) summary(recs []models.FileRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var completed, failed int
	var bytes uint64
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nNAME\tSIZE\tSTATUS\tDETAIL")
	for _, rec := range recs {
		switch {
		case rec.Status == models.StatusCompleted:
			completed++
			bytes += uint64(rec.Size)
		case rec.Status.IsError():
			failed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.Name, humanize.Bytes(uint64(rec.Size)), rec.Status, rec.StatusMessage)
	}
	tw.Flush()
	fmt.Fprintf(p.w, "\n%d uploaded (%s), %d failed\n", completed, humanize.Bytes(bytes), failed)
}
