// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package proxyca mints and persists the daemon's own certificate
// authority, and signs per-host leaf certificates on demand for the
// interception proxy (spec.md §4.9). Grounded directly on
// original_source/.../proxy/ca.rs's file layout and validity periods;
// Go's stdlib crypto/x509 stands in for rcgen/rustls since no ecosystem
// certificate-issuance library in the retrieval pack mints an arbitrary
// CA and signs arbitrary SNI leaves — tailscale/tscert only fetches certs
// for a Tailscale node name from a running tailscaled, a different
// problem (documented exception, see DESIGN.md).
package proxyca

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrCARotationBlocked is returned by Rotate when one or more sessions are
// still live — rotating would orphan their running backends' trust of the
// old CA mid-flight (spec.md §4.9: "the daemon refuses to rotate while any
// session exists").
var ErrCARotationBlocked = errors.New("proxyca: refusing to rotate CA while sessions exist")

const (
	certFileName = "proxy-ca.pem"
	keyFileName  = "proxy-ca-key.pem"

	caCommonName = "Clauderon Proxy CA"
	caOrg        = "Clauderon"
)

// CA holds the daemon's certificate authority plus a cache of leaf
// certificates it has minted, one per SNI host, reused for the daemon's
// lifetime (spec.md §4.9: "cached for reuse during the daemon's lifetime").
type CA struct {
	dir          string
	leafValidity time.Duration

	cert *x509.Certificate
	key  *rsa.PrivateKey

	mu    sync.RWMutex
	leafs map[string]tls.Certificate

	issue singleflight.Group
}

// LoadOrGenerate loads the persisted CA from dir if both files exist;
// otherwise it generates a new CA and persists it. A generated CA's
// not-before is computed exactly once, at generation time — reloading
// never regenerates and never recomputes not-before (spec.md §9's Open
// Question: "reloads parse the persisted cert and never call generate
// again").
func LoadOrGenerate(dir string, caValidity, leafValidity time.Duration) (*CA, error) {
	certPath := filepath.Join(dir, certFileName)
	keyPath := filepath.Join(dir, keyFileName)

	ca := &CA{dir: dir, leafValidity: leafValidity, leafs: map[string]tls.Certificate{}}

	if fileExists(certPath) && fileExists(keyPath) {
		if err := ca.load(certPath, keyPath); err != nil {
			return nil, fmt.Errorf("proxyca: load persisted CA: %w", err)
		}
		return ca, nil
	}
	if err := ca.generate(certPath, keyPath, caValidity); err != nil {
		return nil, fmt.Errorf("proxyca: generate CA: %w", err)
	}
	return ca, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (c *CA) generate(certPath, keyPath string, validity time.Duration) error {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return err
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return err
	}

	notBefore := time.Now().UTC()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   caCommonName,
			Organization: []string{caOrg},
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("parse generated certificate: %w", err)
	}

	if err := os.WriteFile(certPath, encodeCertPEM(der), 0o644); err != nil {
		return fmt.Errorf("write cert: %w", err)
	}
	if err := os.WriteFile(keyPath, encodeRSAKeyPEM(key), 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}

	c.cert = cert
	c.key = key
	return nil
}

func (c *CA) load(certPath, keyPath string) error {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return err
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return err
	}

	cert, err := decodeCertPEM(certPEM)
	if err != nil {
		return fmt.Errorf("decode cert: %w", err)
	}
	key, err := decodeRSAKeyPEM(keyPEM)
	if err != nil {
		return fmt.Errorf("decode key: %w", err)
	}

	c.cert = cert
	c.key = key
	return nil
}

// CertPEM returns the CA certificate in PEM form, for distribution into
// backend resources (spec.md §6's proxy-ca.pem).
func (c *CA) CertPEM() []byte {
	return encodeCertPEM(c.cert.Raw)
}

// CertPath and KeyPath report the on-disk persisted locations.
func (c *CA) CertPath() string { return filepath.Join(c.dir, certFileName) }
func (c *CA) KeyPath() string  { return filepath.Join(c.dir, keyFileName) }

// LeafFor returns a tls.Certificate for host, signed by this CA, generating
// and caching it on first request (spec.md §4.9 step 1). Concurrent
// requests for the same host are coalesced with singleflight so a burst of
// simultaneous CONNECTs to one host only mints one certificate.
func (c *CA) LeafFor(host string) (tls.Certificate, error) {
	c.mu.RLock()
	if leaf, ok := c.leafs[host]; ok {
		c.mu.RUnlock()
		return leaf, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.issue.Do(host, func() (any, error) {
		return c.mintLeaf(host)
	})
	if err != nil {
		return tls.Certificate{}, err
	}
	return result.(tls.Certificate), nil
}

func (c *CA) mintLeaf(host string) (tls.Certificate, error) {
	c.mu.RLock()
	if leaf, ok := c.leafs[host]; ok {
		c.mu.RUnlock()
		return leaf, nil
	}
	c.mu.RUnlock()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("proxyca: generate leaf key: %w", err)
	}
	serial, err := randomSerial()
	if err != nil {
		return tls.Certificate{}, err
	}

	notBefore := time.Now().UTC()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: host},
		NotBefore:    notBefore,
		NotAfter:     notBefore.Add(c.leafValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	if ip := net.ParseIP(host); ip != nil {
		template.IPAddresses = []net.IP{ip}
	} else {
		template.DNSNames = []string{host}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, c.cert, &key.PublicKey, c.key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("proxyca: sign leaf for %s: %w", host, err)
	}

	leaf := tls.Certificate{
		Certificate: [][]byte{der, c.cert.Raw},
		PrivateKey:  key,
	}

	c.mu.Lock()
	c.leafs[host] = leaf
	c.mu.Unlock()
	return leaf, nil
}

// Rotate replaces the CA with a freshly generated one. Refuses while
// activeSessions > 0 per spec.md §4.9's CA lifecycle rule — rotating would
// require re-distributing the new cert to every running backend resource,
// which the daemon does not do out-of-band.
func (c *CA) Rotate(activeSessions int) error {
	if activeSessions > 0 {
		return ErrCARotationBlocked
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leafs = map[string]tls.Certificate{}
	return c.generate(c.CertPath(), c.KeyPath(), defaultCAValidityOnRotate)
}

// defaultCAValidityOnRotate mirrors the 10-year validity used at first
// generation; Rotate has no caller-supplied validity argument since it is
// an emergency operator action, not a configurable startup path.
const defaultCAValidityOnRotate = 10 * 365 * 24 * time.Hour

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, fmt.Errorf("proxyca: generate serial: %w", err)
	}
	return serial, nil
}
