package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// OSDir is a Reader/Writer rooted at a directory on the local filesystem.
// Path segments are validated so no operation can escape the root.
type OSDir struct {
	root string
}

// NewOSDir returns an OSDir rooted at root. The directory must exist.
func NewOSDir(root string) (*OSDir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", abs, mapErr(err))
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open %s: not a directory: %w", abs, ErrInvalidPath)
	}
	return &OSDir{root: abs}, nil
}

// Root returns the absolute root directory.
func (d *OSDir) Root() string { return d.root }

func (d *OSDir) resolve(path []string) string {
	return filepath.Join(append([]string{d.root}, path...)...)
}

// Read implements Reader.
func (d *OSDir) Read(ctx context.Context, path []string) ([]byte, error) {
	if err := prepare(ctx, path, false); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", Join(path), mapErr(err))
	}
	return data, nil
}

// List implements Reader. Entries that are neither regular files nor
// directories (sockets, symlinks) are skipped.
func (d *OSDir) List(ctx context.Context, path []string) ([]Entry, error) {
	if err := prepare(ctx, path, true); err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(d.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", Join(path), mapErr(err))
	}
	entries := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		switch {
		case de.IsDir():
			entries = append(entries, Entry{Name: de.Name(), Dir: true})
		case de.Type().IsRegular():
			entries = append(entries, Entry{Name: de.Name()})
		}
	}
	sortEntries(entries)
	return entries, nil
}

// Write implements Writer.
func (d *OSDir) Write(ctx context.Context, path []string, data []byte) error {
	if err := prepare(ctx, path, false); err != nil {
		return err
	}
	full := d.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", Join(path), err)
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("write %s: %w", Join(path), mapErr(err))
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", Join(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write %s: %w", Join(path), err)
	}
	return nil
}

// Mkdir implements Writer.
func (d *OSDir) Mkdir(ctx context.Context, path []string) error {
	if err := prepare(ctx, path, false); err != nil {
		return err
	}
	full := d.resolve(path)
	if _, err := os.Stat(full); err == nil {
		return fmt.Errorf("mkdir %s: %w", Join(path), ErrExists)
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", Join(path), err)
	}
	return nil
}

// Remove implements Writer.
func (d *OSDir) Remove(ctx context.Context, path []string) error {
	if err := prepare(ctx, path, false); err != nil {
		return err
	}
	full := d.resolve(path)
	if _, err := os.Lstat(full); err != nil {
		return fmt.Errorf("remove %s: %w", Join(path), mapErr(err))
	}
	if err := os.RemoveAll(full); err != nil {
		return fmt.Errorf("remove %s: %w", Join(path), err)
	}
	return nil
}

// Clean implements Writer. The root directory itself is kept.
func (d *OSDir) Clean(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dirents, err := os.ReadDir(d.root)
	if err != nil {
		return fmt.Errorf("clean: %w", err)
	}
	for _, de := range dirents {
		if err := os.RemoveAll(filepath.Join(d.root, de.Name())); err != nil {
			return fmt.Errorf("clean: %w", err)
		}
	}
	return nil
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%w: %v", ErrExists, err)
	}
	return err
}
