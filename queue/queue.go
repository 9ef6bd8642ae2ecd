/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package queue holds pending work items and hands each one to exactly one worker.
package queue

import (
	"sync"

	"github.com/PivotLLM/MacroBench/global"
)

// Stats is a snapshot of queue state counts
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Claimed   int `json:"claimed"`
	Succeeded int `json:"succeeded"`
	Exhausted int `json:"exhausted"`
}

// Queue is a mutex-guarded work queue.
// Items move pending -> claimed -> (success | exhausted) and are never re-queued.
type Queue struct {
	mu       sync.Mutex
	items    []global.WorkItem
	next     int                 // index of the first item that may still be pending
	state    map[string]string   // key -> item state
	inFlight map[string]struct{} // keys currently claimed
	closed   bool
}

// New creates a queue in the given order. Later duplicates of a key are dropped.
func New(items []global.WorkItem) *Queue {
	q := &Queue{
		state:    make(map[string]string, len(items)),
		inFlight: make(map[string]struct{}),
	}
	for _, item := range items {
		if _, dup := q.state[item.Key]; dup {
			continue
		}
		q.state[item.Key] = global.ItemStatePending
		q.items = append(q.items, item)
	}
	return q
}

// Claim hands out the first pending item. It returns false when nothing is left
// to claim or the queue has been closed.
func (q *Queue) Claim() (global.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return global.WorkItem{}, false
	}

	for q.next < len(q.items) {
		item := q.items[q.next]
		q.next++
		if q.state[item.Key] != global.ItemStatePending {
			continue
		}
		if _, held := q.inFlight[item.Key]; held {
			continue
		}
		q.state[item.Key] = global.ItemStateClaimed
		q.inFlight[item.Key] = struct{}{}
		return item, true
	}
	return global.WorkItem{}, false
}

// Complete records the terminal state of a claimed item
func (q *Queue) Complete(key string, success bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, held := q.inFlight[key]; !held {
		return
	}
	delete(q.inFlight, key)
	if success {
		q.state[key] = global.ItemStateSuccess
	} else {
		q.state[key] = global.ItemStateExhausted
	}
}

// Close stops further claims. Items already claimed can still complete.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Closed reports whether Close has been called
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of items the queue was built with
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns keys not yet claimed, in queue order
func (q *Queue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var keys []string
	for _, item := range q.items {
		if q.state[item.Key] == global.ItemStatePending {
			keys = append(keys, item.Key)
		}
	}
	return keys
}

// InFlight returns the keys currently claimed
func (q *Queue) InFlight() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	keys := make([]string, 0, len(q.inFlight))
	for _, item := range q.items {
		if _, held := q.inFlight[item.Key]; held {
			keys = append(keys, item.Key)
		}
	}
	return keys
}

// State returns the state of a key, or "" if unknown
func (q *Queue) State(key string) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state[key]
}

// Stats returns counts per state
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{Total: len(q.items)}
	for _, st := range q.state {
		switch st {
		case global.ItemStatePending:
			s.Pending++
		case global.ItemStateClaimed:
			s.Claimed++
		case global.ItemStateSuccess:
			s.Succeeded++
		case global.ItemStateExhausted:
			s.Exhausted++
		}
	}
	return s
}
