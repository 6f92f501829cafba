package tunnel

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/agusx1211/hitlctl/config"
	"golang.org/x/crypto/ssh"
)

// Dialer opens TCP connections through an SSH jump host. One SSH client is
// shared by all connections and re-established after it drops.
type Dialer struct {
	addr   string
	config *ssh.ClientConfig

	mu     sync.Mutex
	client *ssh.Client
	closed bool
}

func New(cfg config.TunnelConfig) (*Dialer, error) {
	must(cfg.Enabled, "tunnel must be enabled")
	key, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read tunnel key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse tunnel key: %w", err)
	}
	return NewWithSigner(cfg.Host, cfg.User, signer), nil
}

func NewWithSigner(host, user string, signer ssh.Signer) *Dialer {
	must(host != "", "tunnel host must not be empty")
	must(signer != nil, "tunnel signer must not be nil")
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, "22")
	}
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	return &Dialer{addr: addr, config: cfg}
}

func (d *Dialer) Addr() string {
	return d.addr
}

// DialContext matches net.Dialer.DialContext. The address is resolved on the
// far side of the tunnel.
func (d *Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	client, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := dialVia(ctx, client, network, addr)
	if err == nil {
		return conn, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	// The shared client may be stale; reconnect once.
	log.Printf("[tunnel] dial %s via %s failed, reconnecting: %v", addr, d.addr, err)
	d.drop(client)
	client, err = d.connect(ctx)
	if err != nil {
		return nil, err
	}
	return dialVia(ctx, client, network, addr)
}

func (d *Dialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

func (d *Dialer) connect(ctx context.Context) (*ssh.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, net.ErrClosed
	}
	if d.client != nil {
		return d.client, nil
	}
	nd := net.Dialer{}
	conn, err := nd.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return nil, fmt.Errorf("dial ssh %s: %w", d.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	cc, chans, reqs, err := ssh.NewClientConn(conn, d.addr, d.config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", d.addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	d.client = ssh.NewClient(cc, chans, reqs)
	return d.client, nil
}

func (d *Dialer) drop(client *ssh.Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == client {
		_ = d.client.Close()
		d.client = nil
	}
}

func dialVia(ctx context.Context, client *ssh.Client, network, addr string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := client.Dial(network, addr)
		done <- result{conn, err}
	}()
	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}
