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

package server

import (
	"sync"

	glog "github.com/golang/glog"
	"github.com/google/tink/go/subtle/random"
	"github.com/partisiablockchain/offchain-secret-sharing/chain"
	"github.com/partisiablockchain/offchain-secret-sharing/constants"
	"github.com/partisiablockchain/offchain-secret-sharing/contract"
	"github.com/partisiablockchain/offchain-secret-sharing/contract/taskqueue"
)

// RandomnessChain is the engine's view of the randomness contract.
type RandomnessChain interface {
	CurrentCommitTask(engineIndex int) (contract.RandomnessTaskView, bool)
	CurrentUploadTask(engineIndex int) (contract.RandomnessTaskView, bool)
	CommitToRandomness(sender chain.Address, taskID taskqueue.TaskID, commitment chain.Hash) error
	UploadRandomness(sender chain.Address, taskID taskqueue.TaskID, randomness []byte) error
}

// RandomnessWorker drives one engine's side of the commit-then-reveal
// protocol. Wire OnStateChange to chain state notifications; each call
// performs whatever step the live task is waiting on from this engine.
type RandomnessWorker struct {
	mu      sync.Mutex
	running bool
	rerun   bool
	chain   RandomnessChain
	keys    *chain.KeyPair
	index   int
	metrics *Metrics
	// pending maps a commitment to its unrevealed randomness. Entries are
	// removed once the reveal has been accepted on chain.
	pending map[chain.Hash][]byte
}

// NewRandomnessWorker creates a worker for the engine at the given slot.
// Metrics may be nil.
func NewRandomnessWorker(ch RandomnessChain, keys *chain.KeyPair, index int, metrics *Metrics) *RandomnessWorker {
	return &RandomnessWorker{
		chain:   ch,
		keys:    keys,
		index:   index,
		metrics: metrics,
		pending: make(map[chain.Hash][]byte),
	}
}

// OnStateChange inspects the live tasks and reports any step this engine
// has not performed yet. Notifications arriving while a pass is running,
// including re-entrant ones triggered by the worker's own chain calls, are
// coalesced into one more pass instead of blocking.
func (w *RandomnessWorker) OnStateChange() {
	w.mu.Lock()
	if w.running {
		w.rerun = true
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	for {
		w.maybeCommit()
		w.maybeUpload()

		w.mu.Lock()
		if !w.rerun {
			w.running = false
			w.mu.Unlock()
			return
		}
		w.rerun = false
		w.mu.Unlock()
	}
}

func (w *RandomnessWorker) maybeCommit() {
	task, exists := w.chain.CurrentCommitTask(w.index)
	if !exists || task.Reported {
		return
	}

	randomness := random.GetRandomBytes(constants.RandomnessLength)
	commitment := chain.HashOf(randomness)
	w.pending[commitment] = randomness

	if err := w.chain.CommitToRandomness(w.keys.Address(), task.ID, commitment); err != nil {
		glog.Errorf("Engine %d failed to commit to randomness task %d: %v", w.index, task.ID, err)
		delete(w.pending, commitment)
		return
	}
	glog.V(1).Infof("Engine %d committed to randomness task %d", w.index, task.ID)
}

func (w *RandomnessWorker) maybeUpload() {
	task, exists := w.chain.CurrentUploadTask(w.index)
	if !exists || task.Reported {
		return
	}

	commitment := task.Commitments[w.index]
	randomness, held := w.pending[commitment]
	if !held {
		// The commitment belongs to a previous process lifetime; nothing to
		// reveal. The round stalls until operators intervene.
		glog.Errorf("Engine %d holds no randomness for commitment %v", w.index, commitment)
		return
	}

	if err := w.chain.UploadRandomness(w.keys.Address(), task.ID, randomness); err != nil {
		glog.Errorf("Engine %d failed to upload randomness for task %d: %v", w.index, task.ID, err)
		return
	}
	delete(w.pending, commitment)
	w.metrics.randomnessRound()
	glog.V(1).Infof("Engine %d revealed randomness for task %d", w.index, task.ID)
}
