// Copyright 2024 Partisia Blockchain Applications
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package taskqueue implements the on-chain task queue used to coordinate
// work that every off-chain engine must complete before the contract state
// advances.
package taskqueue

import "fmt"

// TaskID identifies a single task. Zero means no task has been created yet.
type TaskID uint32

// Task is one unit of work with a completion slot per engine. A task counts
// as complete only once every engine has filled its slot.
type Task[D, C any] struct {
	id         TaskID
	definition D
	// completion holds one optional entry per engine; nil marks an engine
	// that has not reported yet.
	completion []*C
}

// ID returns the identifier of the task.
func (t *Task[D, C]) ID() TaskID {
	return t.id
}

// Definition returns the definition of the task.
func (t *Task[D, C]) Definition() D {
	return t.definition
}

// IsComplete reports whether every engine has filled its completion slot.
func (t *Task[D, C]) IsComplete() bool {
	for _, c := range t.completion {
		if c == nil {
			return false
		}
	}
	return true
}

// HasReported reports whether the given engine has filled its slot.
func (t *Task[D, C]) HasReported(engineIndex int) bool {
	return t.completion[engineIndex] != nil
}

// AllCompletionData returns the completion data of every engine, or false if
// any engine has not reported yet.
func (t *Task[D, C]) AllCompletionData() ([]C, bool) {
	result := make([]C, len(t.completion))
	for i, c := range t.completion {
		if c == nil {
			return nil, false
		}
		result[i] = *c
	}
	return result, true
}

// Queue holds the tasks that the engines must work through, in creation
// order. At every point taskIdOfCurrent <= taskIdOfLastCreated holds; the
// current id advances whenever the current task is complete or gone
// (level-triggered, checked on every mutation).
type Queue[D, C any] struct {
	numEngines          int
	taskIDOfCurrent     TaskID
	taskIDOfLastCreated TaskID
	tasks               map[TaskID]*Task[D, C]
}

// New creates a Queue for the given number of engines.
func New[D, C any](numEngines int) *Queue[D, C] {
	return &Queue[D, C]{
		numEngines: numEngines,
		tasks:      map[TaskID]*Task[D, C]{},
	}
}

// Current returns the id of the task the engines should currently work on.
func (q *Queue[D, C]) Current() TaskID {
	return q.taskIDOfCurrent
}

// Get returns the task with the given id.
func (q *Queue[D, C]) Get(id TaskID) (*Task[D, C], bool) {
	task, exists := q.tasks[id]
	return task, exists
}

// Push adds a task with the given definition and empty completion slots,
// assigning the next id.
func (q *Queue[D, C]) Push(definition D) TaskID {
	q.taskIDOfLastCreated++
	q.tasks[q.taskIDOfLastCreated] = &Task[D, C]{
		id:         q.taskIDOfLastCreated,
		definition: definition,
		completion: make([]*C, q.numEngines),
	}
	q.bumpCurrentIfNeeded()
	return q.taskIDOfLastCreated
}

// Remove deletes the task with the given id. Tasks are removed exactly when
// the contract has consumed their completion data.
func (q *Queue[D, C]) Remove(id TaskID) {
	delete(q.tasks, id)
}

// MarkCompletion fills the engine's completion slot of the given task.
// Re-sending to an already filled slot is a detectable no-op: the second
// return value is false and the stored data is left untouched.
func (q *Queue[D, C]) MarkCompletion(engineIndex int, id TaskID, completion C) (*Task[D, C], bool, error) {
	task, exists := q.tasks[id]
	if !exists {
		return nil, false, fmt.Errorf("no task with id %d", id)
	}
	if engineIndex < 0 || engineIndex >= q.numEngines {
		return nil, false, fmt.Errorf("invalid engine index %d", engineIndex)
	}
	if task.completion[engineIndex] != nil {
		return task, false, nil
	}
	task.completion[engineIndex] = &completion
	q.bumpCurrentIfNeeded()
	return task, true, nil
}

// bumpCurrentIfNeeded advances the current task id if the current task has
// been completed or removed.
func (q *Queue[D, C]) bumpCurrentIfNeeded() {
	if q.isBumpOfCurrentNeeded() {
		next := q.taskIDOfCurrent + 1
		if next > q.taskIDOfLastCreated {
			next = q.taskIDOfLastCreated
		}
		q.taskIDOfCurrent = next
	}
}

func (q *Queue[D, C]) isBumpOfCurrentNeeded() bool {
	task, exists := q.tasks[q.taskIDOfCurrent]
	if !exists {
		return true
	}
	return task.IsComplete()
}
