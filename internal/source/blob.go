package source

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/roach88/datahog/internal/model"
	"github.com/roach88/datahog/internal/storage"
)

// BlobStore keeps payloads referenced by DataHash.Hash in the fixed layout
//
//	/[file-type]/[first-letter-of-filename]/[full-filename]
//
// where the filename is the hex content hash and the file type is the
// lowercased extension of the original file, or "bin".
type BlobStore struct {
	rw storage.ReadWriter
}

// NewBlobStore stores blobs in rw.
func NewBlobStore(rw storage.ReadWriter) *BlobStore {
	return &BlobStore{rw: rw}
}

// FileType returns the layout directory for a file name.
func FileType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		return "bin"
	}
	return ext
}

// BlobPath returns the layout location of a blob.
func BlobPath(fileType string, h model.U256) []string {
	name := h.String()
	return []string{fileType, name[:1], name}
}

// Put stores data under its content hash. Storing the same content twice is
// a no-op.
func (b *BlobStore) Put(ctx context.Context, fileType string, data []byte) (model.U256, error) {
	h := model.ContentHash(data)
	err := b.rw.Write(ctx, BlobPath(fileType, h), data)
	if err != nil && !errors.Is(err, storage.ErrExists) {
		return h, fmt.Errorf("put blob %s: %w", h.Short(), err)
	}
	return h, nil
}

// Get resolves a reference by searching every file-type directory. The
// content is verified against the hash.
func (b *BlobStore) Get(ctx context.Context, h model.U256) ([]byte, error) {
	types, err := b.rw.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", h.Short(), err)
	}
	for _, t := range types {
		if !t.Dir {
			continue
		}
		data, err := b.rw.Read(ctx, BlobPath(t.Name, h))
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get blob %s: %w", h.Short(), err)
		}
		if model.ContentHash(data) != h {
			return nil, fmt.Errorf("get blob %s: content does not match hash", h.Short())
		}
		return data, nil
	}
	return nil, fmt.Errorf("get blob %s: %w", h.Short(), storage.ErrNotFound)
}
