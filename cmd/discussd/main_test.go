package main

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/discussd/internal/client"
	"github.com/codefionn/discussd/internal/config"
	"github.com/codefionn/discussd/internal/discussion"
	"github.com/codefionn/discussd/internal/storage/memory"
	"github.com/codefionn/discussd/internal/storage/sqlite"
)

func TestFlagsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listen_addr":"127.0.0.1:7000","http_addr":"127.0.0.1:7001","log_level":"warn"}`), 0644))

	opts, err := parseFlags([]string{"-config", path, "-listen", "127.0.0.1:9000", "-http", "", "-store", "memory"}, io.Discard)
	require.NoError(t, err)

	cfg, err := loadConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Equal(t, config.DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestUnsetFlagsKeepConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listen_addr":"127.0.0.1:7000"}`), 0644))

	opts, err := parseFlags([]string{"-config", path}, io.Discard)
	require.NoError(t, err)
	cfg, err := loadConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.ListenAddr)
}

func TestInvalidStoreDriver(t *testing.T) {
	opts, err := parseFlags([]string{"-config", filepath.Join(t.TempDir(), "missing.json"), "-store", "postgres"}, io.Discard)
	require.NoError(t, err)

	_, err = loadConfig(opts)
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestStrayArguments(t *testing.T) {
	_, err := parseFlags([]string{"serve"}, io.Discard)
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	cfg := config.DefaultConfig()

	cfg.Store.Driver = config.DriverMemory
	store, err := openStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)
	require.NoError(t, store.Close())

	cfg.Store.Driver = config.DriverSQLite
	cfg.Store.Path = filepath.Join(t.TempDir(), "discussd.db")
	store, err = openStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, store)
	require.NoError(t, store.Close())
}

// brokenStream fails on the first Next.
type brokenStream struct {
	failed chan struct{}
}

func (s *brokenStream) Next(context.Context) (discussion.Event, error) {
	close(s.failed)
	return discussion.Event{}, errors.New("cursor lost")
}

func (s *brokenStream) Close() error { return nil }

type brokenWatchStore struct {
	*memory.Store
	stream *brokenStream
}

func (s *brokenWatchStore) Watch(context.Context) (discussion.Stream, error) {
	return s.stream, nil
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestServeKeepsRunningWhenChangeStreamFails(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ListenAddr = freeAddr(t)
	cfg.HTTPAddr = ""
	cfg.Store.Driver = config.DriverMemory

	store := &brokenWatchStore{Store: memory.New(), stream: &brokenStream{failed: make(chan struct{})}}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, store) }()

	select {
	case <-store.stream.failed:
	case <-time.After(5 * time.Second):
		t.Fatal("relay never read the change stream")
	}

	var c *client.Client
	require.Eventually(t, func() bool {
		var err error
		c, err = client.Dial(ctx, cfg.ListenAddr)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	defer c.Close()

	reqCtx, reqCancel := context.WithTimeout(ctx, 5*time.Second)
	defer reqCancel()
	_, err := c.Do(reqCtx, "SIGN_IN", "alice")
	require.NoError(t, err)
	_, err = c.Do(reqCtx, "CREATE_DISCUSSION", "doc.intro", "still serving")
	require.NoError(t, err)

	select {
	case err := <-done:
		t.Fatalf("serve returned early: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
