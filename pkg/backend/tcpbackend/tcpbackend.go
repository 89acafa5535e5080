// Package tcpbackend implements the remote-system backend: a fixed set of
// host:port addresses, each exposing a Provider whose HostSession dials
// the remote hostlink-agent endpoint directly. The remote side has
// already completed its own local attach; what arrives here is the
// loopback-forwarded agent session re-exported by the remote host (see
// pkg/hostsession's forwarding mode), so no loader handshake runs here.
package tcpbackend

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hostlink/hostlink/pkg/backend"
	"github.com/hostlink/hostlink/pkg/ferror"
	"github.com/hostlink/hostlink/pkg/hostsession"
	"github.com/hostlink/hostlink/pkg/provider"
)

// DialTimeout bounds how long connecting to a remote address may take.
const DialTimeout = 5 * time.Second

// reexportHandshakePrefix is the line the remote host's re-export
// listener writes before RPC framing begins (see
// pkg/hostsession/serve.go's reexportHandshakeLine). A real remote dial
// must consume and validate it before handing the connection to
// rpcsession.BringUp, or the handshake text is mistaken for RPC framing.
const reexportHandshakePrefix = "HOSTLINK-AGENT-SESSION "

// Backend exposes one Provider per configured remote address.
type Backend struct {
	backend.Base

	addrs []string

	mu        sync.Mutex
	providers map[string]*provider.Provider
}

// NewBackend constructs a TCP backend for the given remote addresses,
// each formatted host:port.
func NewBackend(addrs ...string) *Backend {
	return &Backend{
		Base:      backend.NewBase(),
		addrs:     addrs,
		providers: make(map[string]*provider.Provider),
	}
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return "tcp" }

// Start implements backend.Backend. Every configured address is exposed
// as an available Provider immediately; reachability is only checked
// when a HostSession is actually created for it.
func (b *Backend) Start(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, addr := range b.addrs {
		if _, ok := b.providers[addr]; ok {
			continue
		}
		addr := addr
		p := provider.New(addr, nil, provider.KindRemoteSystem, func(ctx context.Context) (hostsession.HostSession, error) {
			return newHostSession(addr), nil
		})
		b.providers[addr] = p
		b.EmitAvailable(p)
	}
	return nil
}

// Stop implements backend.Backend.
func (b *Backend) Stop(_ context.Context) error {
	b.mu.Lock()
	providers := make([]*provider.Provider, 0, len(b.providers))
	for _, p := range b.providers {
		providers = append(providers, p)
	}
	b.providers = make(map[string]*provider.Provider)
	b.mu.Unlock()

	for _, p := range providers {
		b.EmitUnavailable(p)
	}
	return nil
}

// hostSession dials addr fresh for every attach; the remote agent session
// it reaches is already re-exported by the remote hostlink process.
type hostSession struct {
	*hostsession.AttachManager
	addr string
}

func newHostSession(addr string) *hostSession {
	s := &hostSession{addr: addr}
	s.AttachManager = hostsession.NewAttachManager(s.performAttachTo)
	return s
}

func (s *hostSession) EnumerateProcesses(_ context.Context) ([]hostsession.ProcessInfo, error) {
	return nil, ferror.NewFailed("enumerate processes on remote system", nil)
}

func (s *hostSession) Spawn(_ context.Context, _ string, _ []string) (int, error) {
	return 0, ferror.NewFailed("spawn on remote system is not supported", nil)
}

func (s *hostSession) Resume(_ context.Context, _ int) error {
	return ferror.NewFailed("resume on remote system is not supported", nil)
}

func (s *hostSession) Kill(_ context.Context, _ int) error {
	return ferror.NewFailed("kill on remote system is not supported", nil)
}

// performAttachTo dials the remote address directly; pid is not sent, the
// remote host's own re-export listener already identifies the session by
// address alone. The listener writes a handshake line before any RPC
// framing (pkg/hostsession/serve.go); that line must be consumed here so
// the bytes rpcsession.BringUp reads next are the start of the RPC
// stream, not handshake text.
func (s *hostSession) performAttachTo(ctx context.Context, _ int) (io.ReadWriteCloser, hostsession.Transport, error) {
	d := net.Dialer{Timeout: DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, nil, ferror.NewFailed("dial remote agent session", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Now().Add(DialTimeout))
	}
	line, err := readHandshakeLine(conn)
	if err != nil {
		_ = conn.Close()
		return nil, nil, ferror.NewFailed("read re-export handshake", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if !strings.HasPrefix(line, reexportHandshakePrefix) {
		_ = conn.Close()
		return nil, nil, ferror.NewFailed("unexpected re-export handshake: "+line, nil)
	}

	return conn, hostsession.NoopTransport, nil
}

// readHandshakeLine reads a single '\n'-terminated line byte by byte, so
// it never over-reads past the handshake into bytes belonging to the RPC
// framing that follows it.
func readHandshakeLine(r io.Reader) (string, error) {
	var buf []byte
	var b [1]byte
	for {
		if _, err := r.Read(b[:]); err != nil {
			return "", err
		}
		if b[0] == '\n' {
			return string(buf), nil
		}
		buf = append(buf, b[0])
	}
}
