package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerCreatesAndUpdates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	mgr, err := NewManager(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "config file not created")
	assert.Equal(t, path, mgr.Path())
	assert.Equal(t, filepath.Join(dir, "data"), mgr.Get().DataDir)

	require.NoError(t, mgr.UpdateFromJSON(`{"default_symbol":"ETH/USDT","max_leverage":3}`))
	updated := mgr.Get()
	assert.Equal(t, "ETH/USDT", updated.DefaultSymbol)
	assert.Equal(t, 3.0, updated.MaxLeverage)
	assert.Equal(t, "4h", updated.DefaultInterval)

	reopened, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, updated, reopened.Get())
}

func TestManagerDecodesPartialFileOverBase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cortexdesk.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"available_balance":2500,"interrupt_on":["delete_memory"]}`), 0o644))

	base := DefaultConfigWithRoot(dir)
	base.DeepSeekAPIKey = "sk-env"
	mgr, err := NewManager(path, WithBase(base))
	require.NoError(t, err)

	cfg := mgr.Get()
	assert.Equal(t, 2500.0, cfg.AvailableBalance)
	assert.Equal(t, []string{"delete_memory"}, cfg.InterruptOn)
	assert.Equal(t, "sk-env", cfg.DeepSeekAPIKey)
	assert.Equal(t, 5.0, cfg.MaxLeverage)
	assert.Equal(t, []string{"save_memory", "delete_memory"}, base.InterruptOn)
}

func TestManagerRejectsInvalidInput(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(filepath.Join(dir, "config.json"))
	require.NoError(t, err)

	cfg := mgr.Get()
	cfg.MaxLeverage = 0.5
	err = mgr.Update(cfg)
	assert.ErrorContains(t, err, "max_leverage")
	assert.Equal(t, 5.0, mgr.Get().MaxLeverage)
	assert.Error(t, mgr.UpdateFromJSON("{not json"))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"llm_provider":"llama"}`), 0o644))
	_, err = NewManager(bad)
	assert.ErrorContains(t, err, "llm_provider")

	_, err = NewManager(" ")
	assert.Error(t, err)
}

func TestManagerUsesBaseForNewFile(t *testing.T) {
	dir := t.TempDir()
	base := DefaultConfigWithRoot(dir)
	base.LLMProvider = ProviderOpenAI
	base.Model = "gpt-4o-mini"

	mgr, err := NewManager(filepath.Join(dir, "config.json"), WithBase(base))
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, mgr.Get().LLMProvider)
}

func TestChangedKeys(t *testing.T) {
	a := *DefaultConfigWithRoot("/tmp/x")
	b := a
	assert.Empty(t, ChangedKeys(a, b))

	b.AvailableBalance = 1
	b.Model = "gpt-4o"
	keys := ChangedKeys(a, b)
	assert.Equal(t, []string{"available_balance", "model"}, keys)

	ch := Change{Old: a, New: b, Keys: keys}
	assert.True(t, ch.Touches(AccountKeys...))
	assert.False(t, ch.Touches("max_steps"))
}

func TestManagerWatchReloads(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(filepath.Join(dir, "config.json"), WithDebounce(50*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Change, 4)
	require.NoError(t, mgr.Watch(ctx, func(ch Change) { changes <- ch }))
	assert.Error(t, mgr.Watch(ctx, nil))

	cfg := mgr.Get()
	cfg.DefaultInterval = "1h"
	require.NoError(t, writeConfigFile(mgr.Path(), cfg))

	select {
	case ch := <-changes:
		assert.Equal(t, "1h", ch.New.DefaultInterval)
		assert.Equal(t, "4h", ch.Old.DefaultInterval)
		assert.Equal(t, []string{"default_interval"}, ch.Keys)
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not fire on config change")
	}

	require.NoError(t, os.WriteFile(mgr.Path(), []byte(`{"max_steps":0}`), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, "1h", mgr.Get().DefaultInterval)
	assert.Equal(t, 40, mgr.Get().MaxSteps)
}
