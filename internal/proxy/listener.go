// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shepherdjerred/clauderon/internal/backend"
)

// CertIssuer mints a TLS leaf certificate for a given SNI host, satisfied
// by *proxyca.CA. Declared locally to avoid an import cycle between
// internal/proxy and internal/proxyca.
type CertIssuer interface {
	LeafFor(host string) (tls.Certificate, error)
}

// Listener is one session's interception proxy: every CONNECT that
// arrives on it is either transparently tunneled (host has no rule) or
// terminated and re-originated with injected credentials (host matches a
// rule and the session's access mode allows it). Grounded on teacher
// internal/proxy.go's listener/serveWebSocket hijack-and-copy pattern,
// generalized from a path-routed reverse proxy to a CONNECT-tunneling one.
type Listener struct {
	SessionID   string
	Issuer      CertIssuer
	Credentials CredentialSource
	Audit       AuditWriter

	accessMode atomic.Value // backend.AccessMode

	srv *http.Server
	ln  net.Listener
}

// NewListener constructs a Listener bound to addr (typically
// "127.0.0.1:<allocated port>"); call Serve to run it.
func NewListener(addr string, sessionID string, mode backend.AccessMode, issuer CertIssuer, creds CredentialSource, audit AuditWriter) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("proxy: listen %s: %w", addr, err)
	}
	if audit == nil {
		audit = NopWriter{}
	}
	l := &Listener{
		SessionID:   sessionID,
		Issuer:      issuer,
		Credentials: creds,
		Audit:       audit,
		ln:          ln,
	}
	l.accessMode.Store(mode)
	l.srv = &http.Server{Handler: http.HandlerFunc(l.serveHTTP)}
	return l, nil
}

// Addr reports the bound listen address.
func (l *Listener) Addr() string { return l.ln.Addr().String() }

// AccessMode reports the access mode currently in effect for this listener.
func (l *Listener) AccessMode() backend.AccessMode {
	return l.accessMode.Load().(backend.AccessMode)
}

// SetAccessMode updates the access mode an already-running listener filters
// against, letting a session.updated event reload the filter table in place
// (spec §4.5) instead of requiring the listener to be torn down and rebuilt.
func (l *Listener) SetAccessMode(mode backend.AccessMode) {
	l.accessMode.Store(mode)
}

// Serve runs the listener until ctx is cancelled or Shutdown is called.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.srv.Shutdown(shutdownCtx)
	}()
	err := l.srv.Serve(l.ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting new connections and closes the listener.
func (l *Listener) Shutdown(ctx context.Context) error {
	return l.srv.Shutdown(ctx)
}

func (l *Listener) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodConnect {
		http.Error(w, "clauderon proxy only accepts CONNECT", http.StatusMethodNotAllowed)
		return
	}

	host := hostOnly(r.Host)
	rule, matched := FindMatchingRule(host)

	if !matched {
		l.tunnel(w, r)
		return
	}
	if !Allowed(l.AccessMode(), rule) {
		http.Error(w, "forbidden by session access mode", http.StatusForbidden)
		return
	}
	l.intercept(w, r, host, rule)
}

// tunnel hijacks the client connection and copies bytes bidirectionally
// between it and the dialed upstream, with no inspection — the same
// pattern teacher internal/proxy.go's serveWebSocket used for a hijacked
// WebSocket upgrade, here applied to an opaque CONNECT tunnel instead.
func (l *Listener) tunnel(w http.ResponseWriter, r *http.Request) {
	upstream, err := net.DialTimeout("tcp", hostWithPort(r.Host), 10*time.Second)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer upstream.Close()

	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}
	client, _, err := hj.Hijack()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer client.Close()

	if _, err := client.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		return
	}
	copyBoth(client, upstream)
}

// intercept terminates TLS with a locally minted leaf certificate for
// host, then forwards each decrypted request to the real upstream over a
// fresh TLS connection with the rule's credential injected, auditing each
// round trip (spec.md §4.9 steps 1-4).
func (l *Listener) intercept(w http.ResponseWriter, r *http.Request, host string, rule Rule) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}
	client, _, err := hj.Hijack()
	if err != nil {
		return
	}
	defer client.Close()

	if _, err := client.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		return
	}

	leaf, err := l.Issuer.LeafFor(host)
	if err != nil {
		log.Error().Err(err).Str("host", host).Msg("proxy: mint leaf failed")
		return
	}
	tlsConn := tls.Server(client, &tls.Config{Certificates: []tls.Certificate{leaf}})
	defer tlsConn.Close()
	if err := tlsConn.Handshake(); err != nil {
		return
	}

	reader := bufio.NewReader(tlsConn)
	for {
		req, err := http.ReadRequest(reader)
		if err != nil {
			return
		}
		req.URL.Scheme = "https"
		req.URL.Host = host
		l.proxyOne(tlsConn, req, host, rule)
	}
}

func (l *Listener) proxyOne(w io.Writer, req *http.Request, host string, rule Rule) {
	start := time.Now()
	injected := false

	if token, ok, err := l.Credentials.Lookup(req.Context(), rule.CredentialKey); err == nil && ok {
		req.Header.Set(rule.HeaderName, rule.FormatHeader(token))
		injected = true
	}
	req.RequestURI = ""

	upstreamConn, err := tls.Dial("tcp", hostWithPort(host), &tls.Config{ServerName: host})
	if err != nil {
		l.auditAndWriteError(w, req, host, injected, start, err)
		return
	}
	defer upstreamConn.Close()

	if err := req.Write(upstreamConn); err != nil {
		l.auditAndWriteError(w, req, host, injected, start, err)
		return
	}
	resp, err := http.ReadResponse(bufio.NewReader(upstreamConn), req)
	if err != nil {
		l.auditAndWriteError(w, req, host, injected, start, err)
		return
	}
	defer resp.Body.Close()

	_ = resp.Write(w)
	l.audit(req, host, injected, resp.StatusCode, start)
}

func (l *Listener) auditAndWriteError(w io.Writer, req *http.Request, host string, injected bool, start time.Time, err error) {
	resp := &http.Response{StatusCode: http.StatusBadGateway, ProtoMajor: 1, ProtoMinor: 1, Body: http.NoBody, Header: http.Header{}}
	_ = resp.Write(w)
	l.audit(req, host, injected, http.StatusBadGateway, start)
	log.Error().Err(err).Str("host", host).Msg("proxy: upstream round trip failed")
}

func (l *Listener) audit(req *http.Request, host string, injected bool, status int, start time.Time) {
	entry := AuditEntry{
		Timestamp:    time.Now().UTC(),
		Service:      host,
		Method:       req.Method,
		Path:         req.URL.Path,
		AuthInjected: injected,
		ResponseCode: status,
		DurationMS:   time.Since(start).Milliseconds(),
	}
	if err := l.Audit.Log(entry); err != nil {
		log.Error().Err(err).Msg("proxy: audit log write failed")
	}
}

func hostOnly(hostport string) string {
	h, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}
	return h
}

func hostWithPort(hostport string) string {
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	return hostport + ":443"
}

func copyBoth(a, b net.Conn) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(a, b)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(b, a)
	}()
	wg.Wait()
}
