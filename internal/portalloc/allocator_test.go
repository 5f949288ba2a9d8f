// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package portalloc_test

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdjerred/clauderon/internal/portalloc"
)

func TestAllocateDistinctPorts(t *testing.T) {
	a := portalloc.New(20000, 50)
	p1, err := a.Allocate(uuid.New())
	require.NoError(t, err)
	p2, err := a.Allocate(uuid.New())
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
	assert.GreaterOrEqual(t, p1, 20000)
	assert.Less(t, p1, 20050)
}

func TestReleaseIsIdempotent(t *testing.T) {
	a := portalloc.New(20100, 10)
	sid := uuid.New()
	port, err := a.Allocate(sid)
	require.NoError(t, err)

	a.Release(port)
	a.Release(port)

	_, ok := a.OwnerOf(port)
	assert.False(t, ok)
}

func TestExhaustionRefusesAndDoesNotAdvanceFurther(t *testing.T) {
	a := portalloc.New(20200, 2)
	_, err := a.Allocate(uuid.New())
	require.NoError(t, err)
	_, err = a.Allocate(uuid.New())
	require.NoError(t, err)

	_, err = a.Allocate(uuid.New())
	assert.ErrorIs(t, err, portalloc.ErrNoPortsAvailable)
}

func TestRestoreHydratesOwnershipAndAdvancesCursor(t *testing.T) {
	a := portalloc.New(18100, 500)
	s1, s2 := uuid.New(), uuid.New()

	dropped := a.Restore([]portalloc.Snapshot{
		{Port: 18100, SessionID: s1},
		{Port: 18101, SessionID: s2},
	})
	assert.Empty(t, dropped)

	owner, ok := a.OwnerOf(18100)
	require.True(t, ok)
	assert.Equal(t, s1, owner)
	owner, ok = a.OwnerOf(18101)
	require.True(t, ok)
	assert.Equal(t, s2, owner)

	port, err := a.Allocate(uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 18102, port)
}

func TestRestoreDropsOutOfRangePorts(t *testing.T) {
	a := portalloc.New(18100, 500)
	dropped := a.Restore([]portalloc.Snapshot{
		{Port: 17000, SessionID: uuid.New()},
		{Port: 99999, SessionID: uuid.New()},
	})
	assert.Len(t, dropped, 2)
}

func TestConcurrentAllocationsAreAllDistinct(t *testing.T) {
	a := portalloc.New(21000, 200)
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int]bool)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			port, err := a.Allocate(uuid.New())
			require.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[port], "port %d allocated twice", port)
			seen[port] = true
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 100)
}
