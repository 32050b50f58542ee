package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ericksa/contractassist/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanName(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"contract.pdf", "contract.pdf", false},
		{"  contract.pdf ", "contract.pdf", false},
		{"../../etc/passwd", "passwd", false},
		{`C:\Users\me\lease.docx`, "lease.docx", false},
		{"dir/", "dir", false},
		{"", "", true},
		{"..", "", true},
		{"/", "", true},
		{"a/..", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := CleanName(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func readAll(t *testing.T, s Store, name string) string {
	t.Helper()
	rc, err := s.Open(context.Background(), name)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestLocal_SaveOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	s, err := NewLocal(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "contract.pdf", []byte("first")))
	assert.Equal(t, "first", readAll(t, s, "contract.pdf"))

	// last write wins
	require.NoError(t, s.Save(ctx, "contract.pdf", []byte("second")))
	assert.Equal(t, "second", readAll(t, s, "contract.pdf"))

	info, err := os.Stat(filepath.Join(dir, "contract.pdf"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestLocal_SaveStripsDirectories(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "uploads")
	s, err := NewLocal(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), "../escape.pdf", []byte("x")))

	_, err = os.Stat(filepath.Join(root, "escape.pdf"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "escape.pdf"))
	assert.NoError(t, err)
}

func TestLocal_OpenMissing(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = s.Open(context.Background(), "nope.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Open(context.Background(), "..")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestLocal_OpenDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))
	s, err := NewLocal(dir)
	require.NoError(t, err)

	_, err = s.Open(context.Background(), "sub")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocal_List(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocal(dir)
	require.NoError(t, err)

	objects, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, objects)
	assert.NotNil(t, objects)

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "b.docx", []byte("bb")))
	require.NoError(t, s.Save(ctx, "a.pdf", []byte("a")))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("h"), 0644))

	objects, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "a.pdf", objects[0].Name)
	assert.Equal(t, int64(1), objects[0].Size)
	assert.Equal(t, "b.docx", objects[1].Name)
	assert.Equal(t, int64(2), objects[1].Size)
	assert.False(t, objects[1].Modified.IsZero())
}

func TestNew_Local(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	s, err := New(context.Background(), config.StorageConfig{Backend: config.BackendLocal, UploadDir: dir})
	require.NoError(t, err)

	local, ok := s.(*Local)
	require.True(t, ok)
	assert.Equal(t, dir, local.Dir())
}

func TestNew_Unknown(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)
}

func TestNew_GCSRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Backend: config.BackendGCS})
	assert.Error(t, err)
}
