package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/plc-visualizer/uploader/internal/config"
	"github.com/plc-visualizer/uploader/internal/models"
	"github.com/plc-visualizer/uploader/internal/realtime"
	"github.com/plc-visualizer/uploader/internal/storage"
	"github.com/plc-visualizer/uploader/internal/upload"
	"github.com/spf13/cobra"
)

// ErrBatchFailed is returned by push when any file did not complete.
var ErrBatchFailed = errors.New("some files were not uploaded")

func newPushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push <path>...",
		Short: "Validate and upload files",
		Long:  "Uploads the given files and the regular files directly inside the given directories",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPush,
	}

	cmd.Flags().Bool("queue", false, "Validate the whole batch before any transfer starts")
	cmd.Flags().Int("max-concurrent", 0, "Maximum simultaneous transfers (0 = unbounded)")
	cmd.Flags().Duration("timeout", 30*time.Minute, "Give up when the batch has not settled by then")
	_ = v.BindPFlags(cmd.Flags())

	return cmd
}

func runPush(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if v.IsSet("queue") {
		cfg.Client.QueueMode = v.GetBool("queue")
	}
	if v.IsSet("max-concurrent") {
		cfg.Client.MaxConcurrent = v.GetInt("max-concurrent")
	}

	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no files to upload")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, v.GetDuration("timeout"))
	defer cancel()

	_, err = push(ctx, cmd.OutOrStdout(), cfg, files)
	return err
}

// push runs one batch to completion and prints progress and a summary to out.
func push(ctx context.Context, out io.Writer, cfg *config.AppConfig, files []*models.File) (upload.State, error) {
	policy, err := cfg.ValidationPolicy()
	if err != nil {
		return upload.State{}, err
	}

	sc, err := cfg.StorageConfig()
	if err != nil {
		return upload.State{}, err
	}
	adapter, err := storage.New(ctx, sc)
	if err != nil {
		return upload.State{}, err
	}

	// the chunked backend knows what the organisation already stores
	var existing []string
	if chunked, ok := adapter.(*storage.ChunkedAdapter); ok {
		usage, err := chunked.Usage(ctx)
		if err != nil {
			return upload.State{}, err
		}
		policy.OrgStorageUsed = usage.Used
		existing = usage.Names
	}

	channel, err := realtimeChannel(ctx, cfg, sc.Backend)
	if err != nil {
		return upload.State{}, err
	}

	printer := newProgressPrinter(out)
	settled := make(chan struct{})
	var settleOnce sync.Once

	var engine *upload.Engine
	engine, err = upload.New(adapter, upload.Options{
		Policy:        policy,
		QueueMode:     cfg.Client.QueueMode,
		MaxConcurrent: cfg.Client.MaxConcurrent,
		Realtime:      channel,
		UserID:        cfg.Client.UserID,
		UserEmail:     cfg.Client.UserEmail,
		OnChange: func(st upload.State) {
			printer.update(engine.Snapshot())
			if st.Settled() && st.QueueLen == 0 {
				settleOnce.Do(func() { close(settled) })
			}
		},
	})
	if err != nil {
		return upload.State{}, err
	}

	if err := engine.Start(ctx); err != nil {
		return upload.State{}, err
	}
	defer engine.Dispose()

	if _, err := engine.SubmitFiles(ctx, files, existing); err != nil {
		return upload.State{}, err
	}
	if cfg.Client.QueueMode {
		if err := engine.ProcessQueue(ctx); err != nil {
			return upload.State{}, err
		}
	}

	select {
	case <-settled:
	case <-ctx.Done():
	}
	engine.Wait()

	recs := engine.Snapshot()
	state := engine.State()
	printer.summary(recs)

	if err := ctx.Err(); err != nil && !state.Settled() {
		return state, fmt.Errorf("batch did not settle: %w", err)
	}
	if state.ErrorCount > 0 {
		return state, fmt.Errorf("%w: %d of %d failed", ErrBatchFailed, state.ErrorCount, state.Total)
	}
	return state, nil
}

// realtimeChannel builds the configured channel. The websocket stream belongs to
// the transfer server, so it is only used with the chunked backend.
func realtimeChannel(ctx context.Context, cfg *config.AppConfig, backend string) (realtime.Adapter, error) {
	rc := cfg.RealtimeConfig()
	switch strings.ToLower(rc.Kind) {
	case realtime.KindWebSocket, "ws":
		if backend != "" && !strings.EqualFold(backend, storage.BackendChunked) {
			return nil, nil
		}
	case realtime.KindHub:
		return nil, errors.New("the hub channel only works inside one process")
	}
	return realtime.New(ctx, rc)
}

// collectFiles expands paths into files. Directories contribute the regular
// files directly inside them.
func collectFiles(paths []string) ([]*models.File, error) {
	var files []*models.File
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			f, err := models.NewFileFromPath(p)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			f, err := models.NewFileFromPath(filepath.Join(p, e.Name()))
			if err != nil {
				return nil, err
			}
			files = append(files, f)
		}
	}
	return files, nil
}
