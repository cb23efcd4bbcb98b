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

package taskqueue

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type empty struct{}

func TestQueuePushComplete(t *testing.T) {
	queue := New[empty, empty](2)

	if queue.Current() != 0 {
		t.Fatalf("Current() = %d, want 0", queue.Current())
	}

	for round := TaskID(1); round <= 3; round++ {
		queue.Push(empty{})
		if queue.Current() != round {
			t.Fatalf("Current() = %d, want %d", queue.Current(), round)
		}
		mustMarkCompletion(t, queue, 0, round)
		mustMarkCompletion(t, queue, 1, round)
	}
	// With nothing further pushed, the current id stays at the last task.
	if queue.Current() != 3 {
		t.Fatalf("Current() = %d, want 3", queue.Current())
	}
}

func TestQueuePushManyCompleteMany(t *testing.T) {
	queue := New[empty, empty](2)

	queue.Push(empty{})
	queue.Push(empty{})
	queue.Push(empty{})

	if queue.Current() != 1 {
		t.Fatalf("Current() = %d, want 1", queue.Current())
	}

	for id := TaskID(1); id <= 3; id++ {
		mustMarkCompletion(t, queue, 0, id)
		mustMarkCompletion(t, queue, 1, id)
		want := id + 1
		if want > 3 {
			want = 3
		}
		if queue.Current() != want {
			t.Fatalf("after completing task %d: Current() = %d, want %d", id, queue.Current(), want)
		}
	}
}

func TestTaskCompletionData(t *testing.T) {
	queue := New[empty, int](2)

	if _, exists := queue.Get(1); exists {
		t.Fatalf("Get(1) returned a task before any push")
	}

	queue.Push(empty{})

	task, _ := queue.Get(1)
	if _, complete := task.AllCompletionData(); complete {
		t.Fatalf("AllCompletionData available before any engine reported")
	}

	if _, _, err := queue.MarkCompletion(0, 1, 10); err != nil {
		t.Fatalf("MarkCompletion failed: %v", err)
	}
	if _, complete := task.AllCompletionData(); complete {
		t.Fatalf("AllCompletionData available with one of two engines reported")
	}

	if _, _, err := queue.MarkCompletion(1, 1, 20); err != nil {
		t.Fatalf("MarkCompletion failed: %v", err)
	}
	data, complete := task.AllCompletionData()
	if !complete {
		t.Fatalf("AllCompletionData unavailable after all engines reported")
	}
	if diff := cmp.Diff([]int{10, 20}, data); diff != "" {
		t.Errorf("completion data mismatch (-want +got):\n%s", diff)
	}
}

func TestMarkCompletionIsIdempotent(t *testing.T) {
	queue := New[empty, int](2)
	queue.Push(empty{})

	if _, first, err := queue.MarkCompletion(0, 1, 10); err != nil || !first {
		t.Fatalf("first MarkCompletion = (%v, %v), want (true, nil)", first, err)
	}
	if _, first, err := queue.MarkCompletion(0, 1, 99); err != nil || first {
		t.Fatalf("repeated MarkCompletion = (%v, %v), want a no-op", first, err)
	}

	task, _ := queue.Get(1)
	if _, _, err := queue.MarkCompletion(1, 1, 20); err != nil {
		t.Fatalf("MarkCompletion failed: %v", err)
	}
	data, _ := task.AllCompletionData()
	if data[0] != 10 {
		t.Fatalf("slot 0 = %d after re-send, want the original 10", data[0])
	}
}

func TestMarkCompletionUnknownTask(t *testing.T) {
	queue := New[empty, empty](2)
	if _, _, err := queue.MarkCompletion(0, 7, empty{}); err == nil {
		t.Fatalf("MarkCompletion on unknown task succeeded, expected failure")
	}
}

func TestRemoveCurrentTask(t *testing.T) {
	queue := New[empty, empty](2)

	for id := TaskID(1); id <= 3; id++ {
		queue.Push(empty{})
		queue.Remove(id)
		if queue.Current() != id {
			t.Fatalf("Current() = %d, want %d", queue.Current(), id)
		}
	}

	queue.Push(empty{})
	if _, exists := queue.Get(4); !exists {
		t.Fatalf("Get(4) missing after push")
	}
	if queue.Current() != 4 {
		t.Fatalf("Current() = %d, want 4", queue.Current())
	}
}

func mustMarkCompletion(t *testing.T, queue *Queue[empty, empty], engineIndex int, id TaskID) {
	t.Helper()
	if _, _, err := queue.MarkCompletion(engineIndex, id, empty{}); err != nil {
		t.Fatalf("MarkCompletion(%d, %d) failed: %v", engineIndex, id, err)
	}
}
