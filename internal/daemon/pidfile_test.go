package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_SaveAndLoad(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))
	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	require.NoError(t, pf.Save(Record{PID: 12345, URL: "http://localhost:8080", Started: started}))

	rec, err := pf.Load()
	require.NoError(t, err)
	assert.Equal(t, 12345, rec.PID)
	assert.Equal(t, "http://localhost:8080", rec.URL)
	assert.True(t, rec.Started.Equal(started))

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)
}

func TestPIDFile_Load_PIDOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.pid")
	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0o644))

	rec, err := NewPIDFile(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 4242, rec.PID)
	assert.Empty(t, rec.URL)
	assert.True(t, rec.Started.IsZero())
}

func TestPIDFile_Load_Invalid(t *testing.T) {
	for name, content := range map[string]string{
		"not a number": "not-a-number\n",
		"empty":        "",
		"negative":     "-3\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.pid")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			_, err := NewPIDFile(path).Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid PID file content")
		})
	}
}

func TestPIDFile_Load_Missing(t *testing.T) {
	_, err := NewPIDFile(filepath.Join(t.TempDir(), "none.pid")).Load()
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPIDFile_Claim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "serve.pid")
	pf := NewPIDFile(path)

	require.NoError(t, pf.Claim("http://localhost:9000"))
	rec, err := pf.Load()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), rec.PID)
	assert.Equal(t, "http://localhost:9000", rec.URL)
	assert.False(t, rec.Started.IsZero())

	// Claiming again from the same process just refreshes the record.
	require.NoError(t, pf.Claim("http://localhost:9001"))
}

func TestPIDFile_Claim_ReplacesStale(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))
	require.NoError(t, pf.Save(Record{PID: 999999}))

	require.NoError(t, pf.Claim("http://localhost:8080"))
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_Release(t *testing.T) {
	t.Run("own record is removed", func(t *testing.T) {
		pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))
		require.NoError(t, pf.Claim(""))
		require.NoError(t, pf.Release())
		_, err := os.Stat(pf.Path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("another process's record is kept", func(t *testing.T) {
		pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))
		require.NoError(t, pf.Save(Record{PID: 999999}))
		require.NoError(t, pf.Release())
		_, err := os.Stat(pf.Path)
		assert.NoError(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))
		assert.NoError(t, pf.Release())
	})
}

func TestPIDFile_IsRunning(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))

	pid, running := pf.IsRunning()
	assert.Equal(t, 0, pid)
	assert.False(t, running)

	require.NoError(t, pf.Claim(""))
	pid, running = pf.IsRunning()
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_Signal(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))

	err := pf.Signal(syscall.Signal(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read PID file")

	require.NoError(t, pf.Claim(""))
	assert.NoError(t, pf.Signal(syscall.Signal(0)))
}
