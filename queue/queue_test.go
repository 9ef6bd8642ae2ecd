/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package queue

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PivotLLM/MacroBench/global"
)

func items(n int) []global.WorkItem {
	out := make([]global.WorkItem, n)
	for i := range out {
		out[i] = global.WorkItem{Key: fmt.Sprintf("m__site__T%d", i), MaxAttempts: 2}
	}
	return out
}

func TestClaimOrderAndStates(t *testing.T) {
	q := New(items(3))

	first, ok := q.Claim()
	require.True(t, ok)
	assert.Equal(t, "m__site__T0", first.Key)
	assert.Equal(t, global.ItemStateClaimed, q.State(first.Key))
	assert.Equal(t, []string{"m__site__T0"}, q.InFlight())
	assert.Equal(t, []string{"m__site__T1", "m__site__T2"}, q.Pending())

	q.Complete(first.Key, true)
	assert.Equal(t, global.ItemStateSuccess, q.State(first.Key))
	assert.Empty(t, q.InFlight())

	second, ok := q.Claim()
	require.True(t, ok)
	q.Complete(second.Key, false)
	assert.Equal(t, global.ItemStateExhausted, q.State(second.Key))

	third, ok := q.Claim()
	require.True(t, ok)
	assert.Equal(t, "m__site__T2", third.Key)

	_, ok = q.Claim()
	assert.False(t, ok)

	stats := q.Stats()
	assert.Equal(t, Stats{Total: 3, Claimed: 1, Succeeded: 1, Exhausted: 1}, stats)
}

func TestCompletedItemsAreNeverReclaimed(t *testing.T) {
	q := New(items(1))
	item, ok := q.Claim()
	require.True(t, ok)
	q.Complete(item.Key, false)

	_, ok = q.Claim()
	assert.False(t, ok)

	// Completing an unclaimed key is a no-op
	q.Complete("unknown", true)
	assert.Equal(t, "", q.State("unknown"))
}

func TestDuplicateKeysDropped(t *testing.T) {
	in := append(items(2), items(2)...)
	q := New(in)
	assert.Equal(t, 2, q.Len())
}

func TestClose(t *testing.T) {
	q := New(items(2))
	item, ok := q.Claim()
	require.True(t, ok)

	q.Close()
	assert.True(t, q.Closed())
	_, ok = q.Claim()
	assert.False(t, ok)

	q.Complete(item.Key, true)
	assert.Equal(t, global.ItemStateSuccess, q.State(item.Key))
	assert.Equal(t, []string{"m__site__T1"}, q.Pending())
}

func TestConcurrentClaimsAreExclusive(t *testing.T) {
	const n = 500
	q := New(items(n))

	var mu sync.Mutex
	claimed := make(map[string]int)

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, ok := q.Claim()
				if !ok {
					return
				}
				mu.Lock()
				claimed[item.Key]++
				mu.Unlock()
				q.Complete(item.Key, true)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, n)
	for key, count := range claimed {
		assert.Equal(t, 1, count, key)
	}
	assert.Equal(t, n, q.Stats().Succeeded)
}
