package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/roach88/datahog/internal/model"
	"github.com/roach88/datahog/internal/storage"
)

// DefaultInlineLimit is the largest text payload carried inline.
const DefaultInlineLimit = 64 << 10

// DiskOptions configures a DiskSource.
type DiskOptions struct {
	// Name labels the source root node. Required.
	Name string

	// InlineLimit is the largest UTF-8 payload stored inline. Zero means
	// DefaultInlineLimit.
	InlineLimit int

	// Blobs receives payloads that are not stored inline. Nil means an
	// in-memory store.
	Blobs *BlobStore

	// Clock stamps transactions. Nil means model.DefaultClock.
	Clock model.Clock

	// Logger receives scan diagnostics. Nil means slog.Default().
	Logger *slog.Logger

	// Baseline, when set, seeds the first scan with the tree an earlier
	// run recorded, so only changes since then are emitted.
	Baseline Baseline
}

// Baseline looks up previously applied state. *worldview.WorldView
// satisfies it.
type Baseline interface {
	GetNode(id model.NodeID) (model.Node, error)
	EdgesOf(id model.NodeID) ([]model.Edge, error)
}

// DiskSource maps a directory tree onto the graph. Directories become label
// nodes, files become container nodes, and every entry is linked from its
// parent by a contains edge. The source root hangs off the Universe node.
//
// Identifiers derive from the source ID and the entry path, so rescanning
// produces the same IDs and only changes are emitted.
type DiskSource struct {
	id          model.SourceID
	name        string
	reader      storage.Reader
	blobs       *BlobStore
	inlineLimit int
	clock       model.Clock
	logger      *slog.Logger
	baseline    Baseline
	restored    bool

	mu   sync.Mutex
	seen map[string]fingerprint
	// kinds outlives seen: node kinds are immutable, so an entry that comes
	// back after a removal has to reuse the kind it was first created with.
	kinds map[string]model.NodeKind

	watcher *Watcher
}

// ErrReadOnly is returned by AddTx on sources that cannot persist
// transactions.
var ErrReadOnly = errors.New("source is read-only")

var (
	_ Source   = (*DiskSource)(nil)
	_ Writer   = (*DiskSource)(nil)
	_ Notifier = (*DiskSource)(nil)
)

// fingerprint is what the cursor remembers about one entry.
type fingerprint struct {
	dir  bool
	hash model.U256
}

// scanned is one entry found by a walk.
type scanned struct {
	path   []string
	dir    bool
	parent string
	data   []byte
}

// NewDiskSource creates a disk source over r.
func NewDiskSource(r storage.Reader, opts DiskOptions) *DiskSource {
	if opts.InlineLimit <= 0 {
		opts.InlineLimit = DefaultInlineLimit
	}
	if opts.Blobs == nil {
		opts.Blobs = NewBlobStore(storage.NewMemDir(nil))
	}
	if opts.Clock == nil {
		opts.Clock = model.DefaultClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &DiskSource{
		id:          SourceIDFor("disk", opts.Name),
		name:        opts.Name,
		reader:      r,
		blobs:       opts.Blobs,
		inlineLimit: opts.InlineLimit,
		clock:       opts.Clock,
		logger:      opts.Logger,
		baseline:    opts.Baseline,
		seen:        make(map[string]fingerprint),
		kinds:       make(map[string]model.NodeKind),
	}
}

func (s *DiskSource) ID() model.SourceID { return s.id }
func (s *DiskSource) Name() string { return s.name }

// RootNode returns the NodeID of the source's root label.
func (s *DiskSource) RootNode() model.NodeID { return s.nodeID(nil) }

// NodeFor returns the NodeID the source assigns to a slash-separated path.
func (s *DiskSource) NodeFor(p string) model.NodeID { return s.nodeID(storage.Split(p)) }

func (s *DiskSource) nodeID(path []string) model.NodeID {
	return model.NodeIDFromContent(domainDiskNode, s.id[:], []byte(storage.Join(path)))
}

func (s *DiskSource) edgeID(parent, child string) model.EdgeID {
	return model.EdgeIDFromContent(domainDiskEdge, s.id[:], []byte(parent), []byte(child))
}

// Blob returns the content behind a hash reference emitted by this source.
func (s *DiskSource) Blob(ctx context.Context, h model.U256) ([]byte, error) {
	data, err := s.blobs.Get(ctx, h)
	if err != nil {
		return nil, model.SourceIO(s.name, err)
	}
	return data, nil
}

// Changes implements Notifier. The channel is nil until Watch succeeds, and
// a nil channel never fires.
func (s *DiskSource) Changes() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Changes()
}

// Watch starts an fsnotify watcher on the source's directory. Only sources
// over a storage.OSDir can be watched.
func (s *DiskSource) Watch(ctx context.Context, opts WatcherOptions) error {
	osdir, ok := s.reader.(*storage.OSDir)
	if !ok {
		return fmt.Errorf("watch %s: reader %T is not a filesystem directory", s.name, s.reader)
	}
	if opts.Logger == nil {
		opts.Logger = s.logger
	}
	w, err := NewWatcher(osdir.Root(), opts)
	if err != nil {
		return fmt.Errorf("watch %s: %w", s.name, err)
	}
	if err := w.Start(ctx); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", s.name, err)
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	return nil
}

// AddTx implements Writer. The tree is only ever read, so it always fails.
func (s *DiskSource) AddTx(context.Context, []model.Transaction) error {
	return fmt.Errorf("add tx to %s: %w", s.name, ErrReadOnly)
}

// Close stops the watcher, if any.
func (s *DiskSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	return nil
}

// GetUpdates implements Source. It walks the whole tree and diffs it
// against the previous walk. The cursor only advances when the walk and
// every blob write succeed, so a failed scan is retried in full.
func (s *DiskSource) GetUpdates(ctx context.Context) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.baseline != nil && !s.restored {
		s.restore()
		s.restored = true
	}

	var found []scanned
	if err := s.walk(ctx, nil, &found); err != nil {
		return nil, model.SourceIO(s.name, err)
	}

	next := make(map[string]fingerprint, len(found)+1)
	var txs []model.Transaction
	// Records are never empty here, so building the transaction cannot fail.
	emit := func(ts model.Timestamp, records ...model.Record) {
		txs = append(txs, model.MustTransaction(ts, s.id, records...))
	}

	// Entries below a skipped directory are skipped with it.
	skipped := make(map[string]struct{})

	next[""] = fingerprint{dir: true}
	if _, ok := s.seen[""]; !ok {
		ts := s.clock.Now()
		root := model.NewNode(s.nodeID(nil), model.LabelKind(), s.name, model.DataHash{})
		edge := model.NewEdge(s.edgeID("", ""), model.EdgeContains, model.RootID, root.ID, model.From(ts))
		emit(ts, model.CreateNode(root), model.CreateEdge(edge))
	}

	for _, entry := range found {
		key := storage.Join(entry.path)
		id := s.nodeID(entry.path)
		if _, ok := skipped[entry.parent]; ok {
			skipped[key] = struct{}{}
			continue
		}
		fp := fingerprint{dir: entry.dir}
		var data model.DataHash
		if !entry.dir {
			var err error
			data, err = s.payload(ctx, entry)
			if err != nil {
				return nil, model.SourceIO(s.name, err)
			}
			fp.hash = model.ContentHash(entry.data)
		}
		next[key] = fp

		prev, ok := s.seen[key]
		switch {
		case !ok:
			kind, known := s.priorKind(key, id)
			if !known {
				kind = s.kindOf(entry)
			} else if kind.IsLabel() != entry.dir {
				s.logger.Warn("entry came back with a different type, skipping",
					"source", s.name,
					"path", key)
				delete(next, key)
				skipped[key] = struct{}{}
				continue
			}
			s.kinds[key] = kind
			ts := s.clock.Now()
			node := model.NewNode(id, kind, entry.path[len(entry.path)-1], data)
			edge := model.NewEdge(s.edgeID(entry.parent, key), model.EdgeContains,
				s.nodeID(storage.Split(entry.parent)), id, model.From(ts))
			emit(ts, model.CreateNode(node), model.CreateEdge(edge))
		case prev.dir != entry.dir:
			// A path flipped between file and directory. Node kinds are
			// immutable, so the entry keeps its old identity untouched.
			s.logger.Warn("entry changed type, skipping",
				"source", s.name,
				"path", key)
			next[key] = prev
			skipped[key] = struct{}{}
		case !entry.dir && prev.hash != fp.hash:
			emit(s.clock.Now(), model.UpdateNodeData(id, data))
		}
	}

	// Removed entries: deepest first so children go before parents.
	var removed []string
	for key := range s.seen {
		if _, ok := next[key]; !ok {
			removed = append(removed, key)
		}
	}
	slices.SortFunc(removed, func(a, b string) int {
		if c := strings.Count(b, "/") - strings.Count(a, "/"); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	for _, key := range removed {
		path := storage.Split(key)
		parent := storage.Join(path[:len(path)-1])
		emit(s.clock.Now(), model.DeleteEdge(s.edgeID(parent, key)), model.DeleteNode(s.nodeID(path)))
	}

	s.seen = next
	if len(txs) > 0 {
		s.logger.Debug("disk scan",
			"source", s.name,
			"entries", len(found),
			"transactions", len(txs))
	}
	return txs, nil
}

// priorKind returns the kind an entry's node was created with, if this
// source or an earlier run ever created it. Tombstoned nodes count.
func (s *DiskSource) priorKind(key string, id model.NodeID) (model.NodeKind, bool) {
	if k, ok := s.kinds[key]; ok {
		return k, true
	}
	if s.baseline == nil {
		return model.NodeKind{}, false
	}
	n, err := s.baseline.GetNode(id)
	if err != nil {
		return model.NodeKind{}, false
	}
	return n.Kind, true
}

// restore rebuilds the cursor from the baseline by following contains
// edges down from the source root. Entries whose IDs do not match the path
// they would have on disk were not produced by this source and are skipped.
func (s *DiskSource) restore() {
	root, err := s.baseline.GetNode(s.nodeID(nil))
	if err != nil || root.Deleted {
		return
	}
	s.seen[""] = fingerprint{dir: true}
	s.restoreDir(nil)
	s.logger.Debug("disk cursor restored",
		"source", s.name,
		"entries", len(s.seen)-1)
}

func (s *DiskSource) restoreDir(path []string) {
	parentID := s.nodeID(path)
	edges, err := s.baseline.EdgesOf(parentID)
	if err != nil {
		return
	}
	parentKey := storage.Join(path)
	for _, e := range edges {
		if e.Kind != model.EdgeContains || e.From != parentID || e.Deleted {
			continue
		}
		child, err := s.baseline.GetNode(e.To)
		if err != nil || child.Deleted || child.Label == "" {
			continue
		}
		childPath := storage.Child(path, child.Label)
		key := storage.Join(childPath)
		if child.ID != s.nodeID(childPath) || e.ID != s.edgeID(parentKey, key) {
			continue
		}
		s.kinds[key] = child.Kind
		if child.Kind.IsLabel() {
			s.seen[key] = fingerprint{dir: true}
			s.restoreDir(childPath)
			continue
		}
		fp := fingerprint{}
		if child.Data.IsHash() {
			fp.hash = *child.Data.Hash
		} else {
			fp.hash = model.ContentHash(child.Data.Inline)
		}
		s.seen[key] = fp
	}
}

// walk collects entries below path, parents before children. Hidden
// entries are skipped.
func (s *DiskSource) walk(ctx context.Context, path []string, out *[]scanned) error {
	entries, err := s.reader.List(ctx, path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name, ".") {
			continue
		}
		child := storage.Child(path, e.Name)
		item := scanned{path: child, dir: e.Dir, parent: storage.Join(path)}
		if e.Dir {
			*out = append(*out, item)
			if err := s.walk(ctx, child, out); err != nil {
				return err
			}
			continue
		}
		data, err := s.reader.Read(ctx, child)
		if err != nil {
			return err
		}
		item.data = data
		*out = append(*out, item)
	}
	return nil
}

func (s *DiskSource) kindOf(entry scanned) model.NodeKind {
	if entry.dir {
		return model.LabelKind()
	}
	name := entry.path[len(entry.path)-1]
	if FileType(name) == "md" {
		return model.RenderKind(model.RenderMarkdown)
	}
	return model.MimeKind(mimetype.Detect(entry.data).String())
}

// payload decides between inline storage and a blob reference.
func (s *DiskSource) payload(ctx context.Context, entry scanned) (model.DataHash, error) {
	if len(entry.data) <= s.inlineLimit && utf8.Valid(entry.data) {
		return model.InlineData(entry.data), nil
	}
	name := entry.path[len(entry.path)-1]
	h, err := s.blobs.Put(ctx, FileType(name), entry.data)
	if err != nil {
		return model.DataHash{}, err
	}
	return model.HashRef(h), nil
}
