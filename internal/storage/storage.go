package storage

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrNotFound is returned for a missing file or directory.
	ErrNotFound = errors.New("storage: not found")

	// ErrExists is returned when writing a file or creating a directory
	// that already exists.
	ErrExists = errors.New("storage: already exists")

	// ErrInvalidPath is returned for empty paths or segments that would
	// escape the root.
	ErrInvalidPath = errors.New("storage: invalid path")
)

// Entry is one item of a directory listing.
type Entry struct {
	Name string
	Dir  bool
}

// Reader reads a directory tree.
type Reader interface {
	// Read returns the content of the file at path, or ErrNotFound.
	Read(ctx context.Context, path []string) ([]byte, error)

	// List returns the entries of the directory at path: directories
	// first, then files, each group sorted by name.
	List(ctx context.Context, path []string) ([]Entry, error)
}

// Writer mutates a directory tree.
type Writer interface {
	// Write creates the file at path, creating missing parent
	// directories. It fails with ErrExists if the file is present.
	Write(ctx context.Context, path []string, data []byte) error

	// Mkdir creates the directory at path and any missing parents. It
	// fails with ErrExists if the directory is present.
	Mkdir(ctx context.Context, path []string) error

	// Remove deletes the file or directory subtree at path.
	Remove(ctx context.Context, path []string) error

	// Clean removes everything below the root.
	Clean(ctx context.Context) error
}

// ReadWriter is a Reader and a Writer.
type ReadWriter interface {
	Reader
	Writer
}

// Split turns "a/b/c" into its segments. Leading, trailing and repeated
// slashes are ignored, so "" and "/" both give the root.
func Split(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// Join renders path segments as a slash-separated string.
func Join(path []string) string {
	return strings.Join(path, "/")
}

// Child returns a new path with name appended. The parent is never aliased.
func Child(path []string, name string) []string {
	out := make([]string, 0, len(path)+1)
	out = append(out, path...)
	return append(out, name)
}

func validateSegments(path []string) error {
	for _, seg := range path {
		if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, `/\`) {
			return fmt.Errorf("%w: %q", ErrInvalidPath, Join(path))
		}
	}
	return nil
}

func sortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		if a.Dir != b.Dir {
			if a.Dir {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.Name, b.Name)
	})
}
