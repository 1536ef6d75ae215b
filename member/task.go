// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package member

import (
	"container/heap"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/rush/unit"
)

// TaskKind discriminates the variants of Task.
type TaskKind int

const (
	// TaskCoordRequest re-requests a unit by coordinate until it
	// appears in the store.
	TaskCoordRequest TaskKind = iota
	// TaskParentsRequest re-requests a unit's parents until they are
	// known.
	TaskParentsRequest
	// TaskUnitMulticast re-disseminates one of our own units with
	// exponential backoff.
	TaskUnitMulticast
)

// Task is one pending piece of scheduled work.
type Task struct {
	Kind TaskKind

	// TaskCoordRequest
	Coord unit.UnitCoord

	// TaskParentsRequest, TaskUnitMulticast
	Hash ids.ID

	// TaskUnitMulticast: the delay before the next retry, doubled
	// every time this task fires.
	Delay time.Duration
}

// ScheduledTask is a Task paired with the time it becomes due.
type ScheduledTask struct {
	Task Task
	At   time.Time
}

// taskQueue is a min-heap of ScheduledTask ordered by At, giving
// Member.triggerTasks the earliest-due task in O(log n).
type taskQueue []ScheduledTask

func (q taskQueue) Len() int            { return len(q) }
func (q taskQueue) Less(i, j int) bool  { return q[i].At.Before(q[j].At) }
func (q taskQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *taskQueue) Push(x interface{}) { *q = append(*q, x.(ScheduledTask)) }
func (q *taskQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

var _ heap.Interface = (*taskQueue)(nil)
