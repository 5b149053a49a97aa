package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemDir is an in-memory emulated directory tree.
//
// Thread-safety: all methods are safe for concurrent use.
type MemDir struct {
	mu   sync.RWMutex
	root *memNode
}

type memNode struct {
	files map[string][]byte
	dirs  map[string]*memNode
}

func newMemNode() *memNode {
	return &memNode{files: make(map[string][]byte), dirs: make(map[string]*memNode)}
}

// NewMemDir creates an emulated directory pre-populated with files, keyed
// by slash-separated path. Parent directories are created as needed.
func NewMemDir(files map[string]string) *MemDir {
	d := &MemDir{root: newMemNode()}
	for p, content := range files {
		path := Split(p)
		if len(path) == 0 {
			continue
		}
		dir := d.root.ensure(path[:len(path)-1])
		dir.files[path[len(path)-1]] = []byte(content)
	}
	return d
}

func (n *memNode) ensure(path []string) *memNode {
	cur := n
	for _, seg := range path {
		next, ok := cur.dirs[seg]
		if !ok {
			next = newMemNode()
			cur.dirs[seg] = next
		}
		cur = next
	}
	return cur
}

func (n *memNode) lookup(path []string) (*memNode, bool) {
	cur := n
	for _, seg := range path {
		next, ok := cur.dirs[seg]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Read implements Reader.
func (d *MemDir) Read(ctx context.Context, path []string) ([]byte, error) {
	if err := prepare(ctx, path, false); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	dir, ok := d.root.lookup(path[:len(path)-1])
	if !ok {
		return nil, fmt.Errorf("read %s: %w", Join(path), ErrNotFound)
	}
	data, ok := dir.files[path[len(path)-1]]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", Join(path), ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// List implements Reader.
func (d *MemDir) List(ctx context.Context, path []string) ([]Entry, error) {
	if err := prepare(ctx, path, true); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	dir, ok := d.root.lookup(path)
	if !ok {
		return nil, fmt.Errorf("list %s: %w", Join(path), ErrNotFound)
	}
	entries := make([]Entry, 0, len(dir.dirs)+len(dir.files))
	for name := range dir.dirs {
		entries = append(entries, Entry{Name: name, Dir: true})
	}
	for name := range dir.files {
		entries = append(entries, Entry{Name: name})
	}
	sortEntries(entries)
	return entries, nil
}

// Write implements Writer.
func (d *MemDir) Write(ctx context.Context, path []string, data []byte) error {
	if err := prepare(ctx, path, false); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	name := path[len(path)-1]
	dir := d.root.ensure(path[:len(path)-1])
	if _, ok := dir.files[name]; ok {
		return fmt.Errorf("write %s: %w", Join(path), ErrExists)
	}
	if _, ok := dir.dirs[name]; ok {
		return fmt.Errorf("write %s: is a directory: %w", Join(path), ErrExists)
	}
	dir.files[name] = append([]byte(nil), data...)
	return nil
}

// Mkdir implements Writer.
func (d *MemDir) Mkdir(ctx context.Context, path []string) error {
	if err := prepare(ctx, path, false); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.root.lookup(path); ok {
		return fmt.Errorf("mkdir %s: %w", Join(path), ErrExists)
	}
	d.root.ensure(path)
	return nil
}

// Remove implements Writer.
func (d *MemDir) Remove(ctx context.Context, path []string) error {
	if err := prepare(ctx, path, false); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	dir, ok := d.root.lookup(path[:len(path)-1])
	name := path[len(path)-1]
	if ok {
		if _, isFile := dir.files[name]; isFile {
			delete(dir.files, name)
			return nil
		}
		if _, isDir := dir.dirs[name]; isDir {
			delete(dir.dirs, name)
			return nil
		}
	}
	return fmt.Errorf("remove %s: %w", Join(path), ErrNotFound)
}

// Clean implements Writer.
func (d *MemDir) Clean(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.root = newMemNode()
	return nil
}

// prepare checks the context and the path. Only directory operations
// accept the root path.
func prepare(ctx context.Context, path []string, allowRoot bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(path) == 0 && !allowRoot {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	return validateSegments(path)
}
