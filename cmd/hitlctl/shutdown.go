package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/agusx1211/hitlctl/relay"
	"github.com/agusx1211/hitlctl/session"
	"github.com/agusx1211/hitlctl/store"
	"github.com/agusx1211/hitlctl/tunnel"
)

var (
	shutdownTimeout = 30 * time.Second
	shutdownExit    = os.Exit

	shutdownRelayStop = func(s *relay.Server) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(ctx)
	}
	shutdownRegistryClose = func(r *session.Registry) { r.Close() }
	shutdownSQLStoreClose = func(s *store.SQLiteStore) error {
		return s.Close()
	}
	shutdownTunnelClose = func(d *tunnel.Dialer) error {
		return d.Close()
	}
)

func shutdown(deps *runtimeDeps, cancel context.CancelFunc, wg *sync.WaitGroup, stderr io.Writer) {

	done := make(chan struct{})
	timer := time.AfterFunc(shutdownTimeout, func() {
		fmt.Fprintln(stderr, "shutdown timeout, forcing exit")
		shutdownExit(1)
	})
	go func() {
		shutdownRun(deps, cancel, wg)
		close(done)
	}()
	<-done
	timer.Stop()
}

// shutdownRun stops intake first, then closes sessions while the store is
// still open so their last snapshot lands.
func shutdownRun(deps *runtimeDeps, cancel context.CancelFunc, wg *sync.WaitGroup) {

	if deps.relay != nil {
		_ = shutdownRelayStop(deps.relay)
	}
	cancel()
	wg.Wait()
	shutdownRegistryClose(deps.registry)
	_ = shutdownSQLStoreClose(deps.sqlStore)
	if deps.tunnel != nil {
		_ = shutdownTunnelClose(deps.tunnel)
	}
}

func watchSecondSignal(sigCh <-chan os.Signal, stderr io.Writer) func() {

	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(stderr, "forced exit")
			shutdownExit(1)
		case <-done:
		}
	}()
	return func() { close(done) }
}
