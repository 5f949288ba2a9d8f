// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// CredentialSource looks up a named credential. It is deliberately
// pluggable rather than 1Password-specific: original_source/.../proxy/
// onepassword.rs ties credential lookup to the `op` CLI, but spec.md §4.9
// only requires "an external secret-manager CLI" as one link in the
// lookup chain, so any CLI that accepts a key on argv and prints the
// secret to stdout satisfies the interface.
type CredentialSource interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
}

// Chain looks credentials up in priority order: process environment,
// external secret-manager CLI, secrets directory (spec.md §4.9 step 2).
// The first source that has the key wins; sources after it are never
// consulted for that key.
type Chain struct {
	sources []CredentialSource
}

// NewChain builds the standard three-link lookup chain. cliPath may be
// empty, in which case the CLI link is skipped.
func NewChain(cliPath, secretsDir string) Chain {
	var sources []CredentialSource
	sources = append(sources, envSource{})
	if cliPath != "" {
		sources = append(sources, cliSource{path: cliPath})
	}
	sources = append(sources, fileSource{dir: secretsDir})
	return Chain{sources: sources}
}

// Lookup tries each source in order, returning the first hit.
func (c Chain) Lookup(ctx context.Context, key string) (string, bool, error) {
	for _, s := range c.sources {
		token, ok, err := s.Lookup(ctx, key)
		if err != nil {
			return "", false, fmt.Errorf("proxy: credential lookup for %q: %w", key, err)
		}
		if ok {
			return token, true, nil
		}
	}
	return "", false, nil
}

// envSource reads CLAUDERON_CRED_<KEY> from the process environment,
// uppercased with non-alphanumerics folded to underscores.
type envSource struct{}

func (envSource) Lookup(_ context.Context, key string) (string, bool, error) {
	envKey := "CLAUDERON_CRED_" + strings.ToUpper(strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, key))
	if v, ok := os.LookupEnv(envKey); ok && v != "" {
		return v, true, nil
	}
	return "", false, nil
}

// cliSource shells out to an external secret-manager CLI, invoked as
// `<path> <key>`, trimming trailing newline from stdout.
type cliSource struct {
	path string
}

func (c cliSource) Lookup(ctx context.Context, key string) (string, bool, error) {
	cmd := exec.CommandContext(ctx, c.path, key)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		// A non-zero exit is "not found", not a hard failure — forge-CLI
		// style transients for a missing key are treated as a cache miss.
		return "", false, nil //nolint:nilerr
	}
	token := strings.TrimSpace(out.String())
	if token == "" {
		return "", false, nil
	}
	return token, true, nil
}

// fileSource reads "<dir>/<key>" as the credential value, trimmed of
// surrounding whitespace.
type fileSource struct {
	dir string
}

func (f fileSource) Lookup(_ context.Context, key string) (string, bool, error) {
	if f.dir == "" {
		return "", false, nil
	}
	data, err := os.ReadFile(filepath.Join(f.dir, key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(string(data)), true, nil
}
