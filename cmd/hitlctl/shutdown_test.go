package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/agusx1211/hitlctl/relay"
	"github.com/agusx1211/hitlctl/session"
	"github.com/agusx1211/hitlctl/store"
	"github.com/agusx1211/hitlctl/tunnel"
)

func TestShutdownSequenceOrder(t *testing.T) {
	reset := setShutdownHooksForTest()
	defer reset()
	var mu sync.Mutex
	order := []string{}
	add := func(v string) { mu.Lock(); order = append(order, v); mu.Unlock() }

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() { <-release; add("wg.Wait"); wg.Done() }()

	shutdownRelayStop = func(*relay.Server) error { add("relay.Stop"); return nil }
	shutdownRegistryClose = func(*session.Registry) { add("registry.Close") }
	shutdownSQLStoreClose = func(*store.SQLiteStore) error { add("sqlStore.Close"); return nil }
	shutdownTunnelClose = func(*tunnel.Dialer) error { add("tunnel.Close"); return nil }
	shutdownTimeout = time.Second
	cancel := func() { add("cancel"); close(release) }

	deps := &runtimeDeps{relay: new(relay.Server), registry: new(session.Registry), sqlStore: new(store.SQLiteStore), tunnel: new(tunnel.Dialer)}
	shutdown(deps, cancel, &wg, io.Discard)
	got := strings.Join(order, ",")
	want := "relay.Stop,cancel,wg.Wait,registry.Close,sqlStore.Close,tunnel.Close"
	if got != want {
		t.Fatalf("order mismatch\nwant: %s\ngot:  %s", want, got)
	}
}

func TestShutdownSkipsAbsentParts(t *testing.T) {
	reset := setShutdownHooksForTest()
	defer reset()
	var order []string
	shutdownRelayStop = func(*relay.Server) error { order = append(order, "relay.Stop"); return nil }
	shutdownRegistryClose = func(*session.Registry) { order = append(order, "registry.Close") }
	shutdownSQLStoreClose = func(*store.SQLiteStore) error { order = append(order, "sqlStore.Close"); return nil }
	shutdownTunnelClose = func(*tunnel.Dialer) error { order = append(order, "tunnel.Close"); return nil }

	deps := &runtimeDeps{registry: new(session.Registry), sqlStore: new(store.SQLiteStore)}
	shutdown(deps, func() {}, &sync.WaitGroup{}, io.Discard)
	if got := strings.Join(order, ","); got != "registry.Close,sqlStore.Close" {
		t.Fatalf("order = %s", got)
	}
}

func TestShutdownTimeout(t *testing.T) {
	reset := setShutdownHooksForTest()
	defer reset()
	exitCh := make(chan int, 1)
	release := make(chan struct{})

	shutdownTimeout = 20 * time.Millisecond
	shutdownRegistryClose = func(*session.Registry) { <-release }
	shutdownSQLStoreClose = func(*store.SQLiteStore) error { return nil }
	shutdownExit = func(code int) {
		select {
		case exitCh <- code:
		default:
		}
		close(release)
	}

	deps := &runtimeDeps{registry: new(session.Registry), sqlStore: new(store.SQLiteStore)}
	var wg sync.WaitGroup
	var stderr bytes.Buffer
	done := make(chan struct{})
	go func() { shutdown(deps, func() {}, &wg, &stderr); close(done) }()

	select {
	case code := <-exitCh:
		if code != 1 {
			t.Fatalf("exit code = %d", code)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout did not force exit")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown did not finish after timeout release")
	}
}

func TestDoubleSignalForcesExit(t *testing.T) {
	reset := setShutdownHooksForTest()
	defer reset()
	sigCh := make(chan os.Signal, 2)
	sigCh <- syscall.SIGINT
	sigCh <- syscall.SIGTERM
	<-sigCh

	exitCh := make(chan int, 1)
	shutdownExit = func(code int) {
		select {
		case exitCh <- code:
		default:
		}
	}
	var stderr bytes.Buffer
	stop := watchSecondSignal(sigCh, &stderr)
	defer stop()

	select {
	case code := <-exitCh:
		if code != 1 {
			t.Fatalf("exit code = %d", code)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("second signal did not force exit")
	}
	if !strings.Contains(stderr.String(), "forced exit") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	path, _ := writeConfig(t, "http://127.0.0.1:1")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var out, errOut bytes.Buffer
	go func() {
		done <- run(ctx, []string{"--config", path, "serve", "--listen", "127.0.0.1:0"}, strings.NewReader(""), &out, &errOut)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func setShutdownHooksForTest() func() {
	oldTimeout, oldExit := shutdownTimeout, shutdownExit
	oldRelay, oldRegistry := shutdownRelayStop, shutdownRegistryClose
	oldSQL, oldTunnel := shutdownSQLStoreClose, shutdownTunnelClose
	return func() {
		shutdownTimeout, shutdownExit = oldTimeout, oldExit
		shutdownRelayStop, shutdownRegistryClose = oldRelay, oldRegistry
		shutdownSQLStoreClose, shutdownTunnelClose = oldSQL, oldTunnel
	}
}
