package recording

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjkirchner/tvrecorder/internal/storage"
)

func newSandbox(t *testing.T) *storage.Sandbox {
	t.Helper()
	sb, err := storage.NewSandbox(t.TempDir())
	require.NoError(t, err)
	return sb
}

func TestWriter_DirectToFileWhenNoFilterConfigured(t *testing.T) {
	sb := newSandbox(t)
	w, err := NewWriter(context.Background(), Config{
		RelPath: "common/1_untitled.m2ts-tmp",
		Sandbox: sb,
	})
	require.NoError(t, err)

	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.NoError(t, w.Shutdown())

	data, err := os.ReadFile(filepath.Join(sb.BaseDir(), "common/1_untitled.m2ts-tmp"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestWriter_WriteAfterShutdownFails(t *testing.T) {
	sb := newSandbox(t)
	w, err := NewWriter(context.Background(), Config{
		RelPath: "common/2_untitled.m2ts-tmp",
		Sandbox: sb,
	})
	require.NoError(t, err)
	require.NoError(t, w.Shutdown())

	_, err = w.Write([]byte("x"))
	assert.Error(t, err)
}

func TestWriter_DegradesWhenFilterBinaryMissing(t *testing.T) {
	sb := newSandbox(t)
	w, err := NewWriter(context.Background(), Config{
		RelPath:    "common/3_untitled.m2ts-tmp",
		Sandbox:    sb,
		FilterPath: filepath.Join(t.TempDir(), "does-not-exist"),
	})
	require.NoError(t, err)
	defer w.Shutdown()

	_, err = w.Write([]byte("data"))
	assert.NoError(t, err)
}

func TestWriter_ShutdownIsIdempotent(t *testing.T) {
	sb := newSandbox(t)
	w, err := NewWriter(context.Background(), Config{
		RelPath: "common/4_untitled.m2ts-tmp",
		Sandbox: sb,
	})
	require.NoError(t, err)

	require.NoError(t, w.Shutdown())
	require.NoError(t, w.Shutdown())
}

func TestWriter_Rename(t *testing.T) {
	sb := newSandbox(t)
	w, err := NewWriter(context.Background(), Config{
		RelPath: "common/5_untitled.m2ts-tmp",
		Sandbox: sb,
	})
	require.NoError(t, err)

	require.NoError(t, w.Rename("common/5_untitled.m2ts"))
	assert.Equal(t, "common/5_untitled.m2ts", w.RelPath())

	_, err = w.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, w.Shutdown())

	exists, err := sb.Exists("common/5_untitled.m2ts")
	require.NoError(t, err)
	assert.True(t, exists)
}
