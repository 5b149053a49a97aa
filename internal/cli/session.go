package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/datahog/internal/config"
	"github.com/roach88/datahog/internal/model"
	"github.com/roach88/datahog/internal/source"
	"github.com/roach88/datahog/internal/storage"
	"github.com/roach88/datahog/internal/txlog"
	"github.com/roach88/datahog/internal/worldview"
)

// logSourceName names the transaction log when it is registered as a
// source.
const logSourceName = "log"

// session is a world view rebuilt from the configured transaction log.
// The log is registered as the view's first source, as its write-back
// target and as its journal, so everything applied later is persisted.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	log    txlog.Log
	logSrc *source.LogSource
	view   *worldview.WorldView
	blobs  *source.BlobStore

	closers []func() error
}

// loadConfig reads the config file and applies the --db and --backend
// overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.DB != "" {
		cfg.Log.Path = opts.DB
	}
	if opts.Backend != "" {
		cfg.Log.Backend = opts.Backend
	}
	return cfg, nil
}

// openLog opens the configured transaction log.
func openLog(cfg *config.Config, logger *slog.Logger) (txlog.Log, error) {
	l, err := txlog.Open(txlog.Config{
		Backend: txlog.Backend(cfg.Log.Backend),
		Path:    cfg.Log.Path,
		Logger:  logger,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open log %s", cfg.Log.Path), err)
	}
	return l, nil
}

// openSession loads the config, opens the log and replays it into a new
// world view. A corrupt log, or an entry the view rejects, is a command
// error.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command, viewOpts ...worldview.Option) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Format, cfg.LogLevel, opts.Verbose)

	l, err := openLog(cfg, logger)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, logger: logger, log: l}
	s.closers = append(s.closers, l.Close)

	s.logSrc = source.NewLogSource(logSourceName, l, logger)
	all := append([]worldview.Option{
		worldview.WithLogger(logger),
		worldview.WithWriteBack(s.logSrc),
		worldview.WithJournal(s.logSrc),
		worldview.WithPollInterval(cfg.Interval()),
	}, viewOpts...)
	s.view = worldview.New(all...)

	if _, err := s.view.AddSourceStrict(ctx, s.logSrc); err != nil {
		s.Close()
		if model.IsReplay(err) {
			return nil, WrapExitError(ExitCommandError, "failed to replay transaction log", err)
		}
		return nil, WrapExitError(ExitCommandError, "failed to read transaction log", err)
	}
	return s, nil
}

// blobStore returns the store for payloads too large to inline. It lives
// in a directory next to a file-backed log, and in memory otherwise.
func (s *session) blobStore() (*source.BlobStore, error) {
	if s.blobs != nil {
		return s.blobs, nil
	}
	path := s.cfg.Log.Path
	if path == "" || path == ":memory:" {
		s.blobs = source.NewBlobStore(storage.NewMemDir(nil))
		return s.blobs, nil
	}
	dir := path + ".blobs"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	osdir, err := storage.NewOSDir(dir)
	if err != nil {
		return nil, err
	}
	s.blobs = source.NewBlobStore(osdir)
	return s.blobs, nil
}

// addDisk registers a directory as a disk source and applies its first
// scan. The scan is diffed against what the log already holds for the
// directory. The source is returned unwatched.
func (s *session) addDisk(ctx context.Context, name, dir string, inlineLimit int) (*source.DiskSource, int, error) {
	osdir, err := storage.NewOSDir(dir)
	if err != nil {
		return nil, 0, WrapExitError(ExitCommandError, fmt.Sprintf("directory not found: %s", dir), err)
	}
	if name == "" {
		name = filepath.Base(osdir.Root())
	}
	blobs, err := s.blobStore()
	if err != nil {
		return nil, 0, WrapExitError(ExitCommandError, "failed to open blob store", err)
	}
	disk := source.NewDiskSource(osdir, source.DiskOptions{
		Name:        name,
		InlineLimit: inlineLimit,
		Blobs:       blobs,
		Logger:      s.logger,
		Baseline:    s.view,
	})
	s.closers = append(s.closers, disk.Close)

	applied, err := s.view.AddSource(ctx, disk)
	if err != nil {
		return nil, 0, WrapExitError(ExitCommandError, fmt.Sprintf("failed to scan %s", dir), err)
	}
	return disk, applied, nil
}

// addConfigured registers the config's sources. Disk sources are returned
// so the caller can watch them.
func (s *session) addConfigured(ctx context.Context) ([]configuredDisk, error) {
	var disks []configuredDisk
	for _, sc := range s.cfg.Sources {
		switch sc.Type {
		case config.SourceDisk:
			disk, applied, err := s.addDisk(ctx, sc.Name, sc.Path, sc.InlineLimit)
			if err != nil {
				return nil, err
			}
			disks = append(disks, configuredDisk{src: disk, watch: sc.Watch, applied: applied})
		case config.SourceLog:
			l, err := txlog.Open(txlog.Config{
				Backend: txlog.Backend(s.cfg.Log.Backend),
				Path:    sc.Path,
				Logger:  s.logger,
			})
			if err != nil {
				return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open source log %s", sc.Path), err)
			}
			s.closers = append(s.closers, l.Close)
			if _, err := s.view.AddSource(ctx, source.NewLogSource(sc.Name, l, s.logger)); err != nil {
				return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to read source log %s", sc.Path), err)
			}
		}
	}
	return disks, nil
}

type configuredDisk struct {
	src     *source.DiskSource
	watch   bool
	applied int
}

// lastSeq returns the log's last sequence number.
func (s *session) lastSeq(ctx context.Context) (int64, error) {
	return s.log.LastSeq(ctx)
}

// Close releases every source and the log, most recently opened first.
func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
