package prefs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_MissingFileDefaultsFalse(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "prefs.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, Flags{}, s.Flags())
	assert.False(t, s.AdaptiveEnabled())
	assert.False(t, s.KeepAliveEnabled())
}

func TestOpen_MissingKeysDefaultFalse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("keep_alive_enabled: true\n"), 0o644))
	s, err := Open(path, nil)
	require.NoError(t, err)
	assert.Equal(t, Flags{KeepAliveEnabled: true}, s.Flags())
}

func TestOpen_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dynamic_enabled: [\n"), 0o644))
	_, err := Open(path, nil)
	assert.Error(t, err)
}

func TestSetters_Persist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")
	s, err := Open(path, nil)
	require.NoError(t, err)

	require.NoError(t, s.SetDynamicEnabled(true))
	require.NoError(t, s.SetADBGranted(true))
	require.NoError(t, s.SetKeepAliveEnabled(true))
	require.NoError(t, s.SetKeepAliveEnabled(false))

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	assert.Equal(t, Flags{DynamicEnabled: true, ADBGranted: true}, reopened.Flags())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "dynamic_enabled: true")
}

func TestOnChange(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "prefs.yaml"), nil)
	require.NoError(t, err)

	var got []Flags
	s.OnChange(func(f Flags) { got = append(got, f) })

	require.NoError(t, s.SetDynamicEnabled(true))
	require.NoError(t, s.SetDynamicEnabled(true))
	require.NoError(t, s.Update(func(f *Flags) { f.ADBGranted = true; f.KeepAliveEnabled = true }))

	assert.Equal(t, []Flags{
		{DynamicEnabled: true},
		{DynamicEnabled: true, ADBGranted: true, KeepAliveEnabled: true},
	}, got)
}

func TestWatch_ReloadsExternalEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	s, err := Open(path, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var seen Flags
	s.OnChange(func(f Flags) {
		mu.Lock()
		seen = f
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Watch(ctx)
	// let the watcher register before editing
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("dynamic_enabled: true\nkeep_alive_enabled: true\n"), 0o644))

	assert.Eventually(t, func() bool {
		return s.AdaptiveEnabled() && s.KeepAliveEnabled()
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, seen.DynamicEnabled)
}
