package main

import (
	"fmt"
	"log"

	"github.com/agusx1211/hitlctl/config"
	"github.com/agusx1211/hitlctl/relay"
	"github.com/agusx1211/hitlctl/runtime"
	"github.com/agusx1211/hitlctl/session"
	"github.com/agusx1211/hitlctl/store"
	"github.com/agusx1211/hitlctl/tunnel"
)

type runtimeDeps struct {
	cfg      *config.Config
	client   *runtime.Client
	tunnel   *tunnel.Dialer
	sqlStore *store.SQLiteStore
	registry *session.Registry
	relay    *relay.Server
}

func loadConfig(path string) (*config.Config, error) {
	must(path != "", "config path must not be empty")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newClient(cfg *config.Config) (*runtime.Client, *tunnel.Dialer, error) {
	if !cfg.Tunnel.Enabled {
		return runtime.New(cfg.Runtime), nil, nil
	}
	d, err := tunnel.New(cfg.Tunnel)
	if err != nil {
		return nil, nil, fmt.Errorf("tunnel: %w", err)
	}
	log.Printf("[hitlctl] runtime traffic tunnelled through %s", d.Addr())
	return runtime.NewWithDialer(cfg.Runtime, d.DialContext), d, nil
}

// buildDeps wires the runtime client, history store and session registry.
// The relay is built only when withRelay is set.
func buildDeps(cfg *config.Config, withRelay bool) (*runtimeDeps, error) {
	client, dialer, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		if dialer != nil {
			_ = dialer.Close()
		}
		return nil, fmt.Errorf("open history store: %w", err)
	}
	deps := &runtimeDeps{cfg: cfg, client: client, tunnel: dialer, sqlStore: st}
	deps.registry = session.NewRegistry(session.FromClient(client), *cfg, session.WithRecorder(st))
	if withRelay {
		deps.relay = relay.New(cfg.Relay, deps.registry)
	}
	return deps, nil
}

func must(ok bool, msg string) {
	if msg == "" {
		panic("assertion message must not be empty")
	}
	if !ok {
		panic(msg)
	}
}
