package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/datahog/internal/source"
	"github.com/roach88/datahog/internal/worldview"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Dirs        []string
	Interval    time.Duration
	Debounce    time.Duration
	MetricsAddr string
}

// WatchResult summarizes a watch session when it stops.
type WatchResult struct {
	Sources   []worldview.SourceStatus `json:"sources"`
	Stats     worldview.Stats          `json:"stats"`
	LogLength int64                    `json:"log_length"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync directories into the log until interrupted",
		Long: `Scan directories, then keep the world view in sync with them until
SIGINT or SIGTERM. Filesystem changes trigger a sync immediately; every
source is also polled on the interval. Transactions from the directories
are appended to the log as they are applied.

Without --dir, the config's sources are used and those marked watch are
watched.

Exit codes:
  0 - Stopped by signal
  2 - Command error (directory not found, corrupt log, failed sync, etc.)

Examples:
  datahog watch --dir ./notes --db ./datahog.db
  datahog watch --dir ./notes --dir ./docs --interval 2s
  datahog watch --config datahog.yaml --metrics-addr :9090`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Dirs, "dir", "d", nil, "directory to watch (repeatable; default: config sources)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "poll interval (default: config poll_interval)")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 200*time.Millisecond, "quiet period before a change triggers a sync")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runWatch(ctx context.Context, opts *WatchOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	viewOpts := []worldview.Option{worldview.WithMetrics(worldview.NewMetrics(reg))}
	if opts.Interval > 0 {
		viewOpts = append(viewOpts, worldview.WithPollInterval(opts.Interval))
	}

	s, err := openSession(ctx, opts.RootOptions, cmd, viewOpts...)
	if err != nil {
		return err
	}
	defer s.Close()

	var watched []*source.DiskSource
	if len(opts.Dirs) > 0 {
		for _, dir := range opts.Dirs {
			disk, _, err := s.addDisk(ctx, "", dir, 0)
			if err != nil {
				return err
			}
			watched = append(watched, disk)
		}
	} else {
		disks, err := s.addConfigured(ctx)
		if err != nil {
			return err
		}
		for _, d := range disks {
			if d.watch {
				watched = append(watched, d.src)
			}
		}
	}
	if len(watched) == 0 && len(s.cfg.Sources) == 0 {
		return NewExitError(ExitCommandError, "nothing to watch: pass --dir or configure sources")
	}

	wopts := source.WatcherOptions{Debounce: opts.Debounce, Logger: s.logger}
	for _, disk := range watched {
		if err := disk.Watch(ctx, wopts); err != nil {
			return WrapExitError(ExitCommandError, "failed to watch", err)
		}
		f.VerboseLog("watching %s", disk.Name())
	}
	s.logger.Info("watch started", "sources", len(s.view.SourceStatuses()), "watched", len(watched))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.view.Run(gctx) })
	if opts.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.MetricsAddr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		s.logger.Info("serving metrics", "addr", opts.MetricsAddr)
	}

	err = g.Wait()
	if err != nil && ctx.Err() == nil {
		return WrapExitError(ExitCommandError, "sync loop failed", err)
	}

	// ctx is done here; the log still accepts reads.
	seq, err := s.lastSeq(context.Background())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read log", err)
	}
	result := WatchResult{
		Sources:   s.view.SourceStatuses(),
		Stats:     s.view.Stats(),
		LogLength: seq,
	}
	return f.Emit(result, func(w io.Writer) {
		fmt.Fprintln(w, "Stopped watching.")
		for _, st := range result.Sources {
			fmt.Fprintf(w, "  %s: %d poll(s), %d applied, %d failure(s)\n", st.Name, st.Polls, st.Applied, st.Failures)
		}
		fmt.Fprintf(w, "Log length %d, %d node(s), %d edge(s)\n", result.LogLength, result.Stats.Nodes, result.Stats.Edges)
	})
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok\n")
	})
	return mux
}
