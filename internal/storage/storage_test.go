package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns a fresh instance of every ReadWriter so each contract
// test runs against both.
func backends(t *testing.T) map[string]ReadWriter {
	t.Helper()
	osdir, err := NewOSDir(t.TempDir())
	require.NoError(t, err)
	return map[string]ReadWriter{
		"mem": NewMemDir(nil),
		"os":  osdir,
	}
}

func TestReadWriteContract(t *testing.T) {
	ctx := context.Background()
	for name, rw := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, rw.Write(ctx, Split("notes/a/alpha.txt"), []byte("alpha")))

			data, err := rw.Read(ctx, Split("notes/a/alpha.txt"))
			require.NoError(t, err)
			assert.Equal(t, "alpha", string(data))

			err = rw.Write(ctx, Split("notes/a/alpha.txt"), []byte("again"))
			assert.ErrorIs(t, err, ErrExists)

			_, err = rw.Read(ctx, Split("notes/a/missing.txt"))
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = rw.List(ctx, Split("nowhere"))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestListOrdersDirectoriesFirst(t *testing.T) {
	ctx := context.Background()
	for name, rw := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, rw.Write(ctx, Split("b.txt"), nil))
			require.NoError(t, rw.Write(ctx, Split("a.txt"), nil))
			require.NoError(t, rw.Mkdir(ctx, Split("zdir")))
			require.NoError(t, rw.Mkdir(ctx, Split("adir")))

			entries, err := rw.List(ctx, nil)
			require.NoError(t, err)
			assert.Equal(t, []Entry{
				{Name: "adir", Dir: true},
				{Name: "zdir", Dir: true},
				{Name: "a.txt"},
				{Name: "b.txt"},
			}, entries)
		})
	}
}

func TestMkdirRemoveClean(t *testing.T) {
	ctx := context.Background()
	for name, rw := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, rw.Mkdir(ctx, Split("x/y/z")))
			assert.ErrorIs(t, rw.Mkdir(ctx, Split("x/y")), ErrExists)

			require.NoError(t, rw.Write(ctx, Split("x/y/z/f"), []byte("1")))
			require.NoError(t, rw.Remove(ctx, Split("x/y")))
			_, err := rw.Read(ctx, Split("x/y/z/f"))
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, rw.Remove(ctx, Split("x/y")), ErrNotFound)

			require.NoError(t, rw.Write(ctx, Split("keep"), []byte("1")))
			require.NoError(t, rw.Clean(ctx))
			entries, err := rw.List(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestInvalidPaths(t *testing.T) {
	ctx := context.Background()
	for name, rw := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := rw.Read(ctx, []string{"..", "etc", "passwd"})
			assert.ErrorIs(t, err, ErrInvalidPath)

			err = rw.Write(ctx, []string{"a/b"}, nil)
			assert.ErrorIs(t, err, ErrInvalidPath)

			_, err = rw.Read(ctx, nil)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemDir(map[string]string{"a": "1"}).Read(ctx, Split("a"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewMemDirFromFiles(t *testing.T) {
	ctx := context.Background()
	d := NewMemDir(map[string]string{
		"docs/readme.md": "# hi",
		"docs/img/a.png": "png",
	})

	entries, err := d.List(ctx, Split("docs"))
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Name: "img", Dir: true}, {Name: "readme.md"}}, entries)

	// Reads return copies.
	data, err := d.Read(ctx, Split("docs/readme.md"))
	require.NoError(t, err)
	data[0] = 'X'
	again, err := d.Read(ctx, Split("docs/readme.md"))
	require.NoError(t, err)
	assert.Equal(t, "# hi", string(again))
}

func TestOSDirSkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "real.txt"), []byte("x"), 0o644))
	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skip("symlinks unsupported:", err)
	}

	d, err := NewOSDir(root)
	require.NoError(t, err)
	entries, err := d.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Name: "real.txt"}}, entries)
}

func TestSplitJoin(t *testing.T) {
	assert.Nil(t, Split(""))
	assert.Nil(t, Split("/"))
	assert.Equal(t, []string{"a", "b"}, Split("/a//b/"))
	assert.Equal(t, "a/b", Join([]string{"a", "b"}))

	parent := []string{"a"}
	c1 := Child(parent, "x")
	c2 := Child(parent, "y")
	assert.Equal(t, []string{"a", "x"}, c1)
	assert.Equal(t, []string{"a", "y"}, c2)
}
