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

// Package ledger hosts the on-chain contracts in memory and serializes all
// invocations, mimicking the one-transaction-at-a-time execution model of
// the blockchain. It is the single point through which clients and engines
// observe and mutate contract state.
package ledger

import (
	"sync"
	"time"

	"github.com/partisiablockchain/offchain-secret-sharing/chain"
	"github.com/partisiablockchain/offchain-secret-sharing/contract"
	"github.com/partisiablockchain/offchain-secret-sharing/contract/taskqueue"
)

// Ledger wraps the secret-sharing and randomness contracts. All methods are
// safe for concurrent use; each invocation runs under the ledger lock, like
// a transaction in its own block.
type Ledger struct {
	mu         sync.Mutex
	now        func() time.Time
	sharing    *contract.OffChainSecretSharing
	randomness *contract.PublishRandomness
	observers  []func()
}

// New creates a ledger hosting fresh contract instances served by the given
// engines. The now function supplies block production time; pass time.Now
// outside tests.
func New(engines []contract.EngineConfig, now func() time.Time) *Ledger {
	return &Ledger{
		now:        now,
		sharing:    contract.NewOffChainSecretSharing(engines),
		randomness: contract.NewPublishRandomness(engines),
	}
}

// Subscribe registers a callback invoked after every state-changing
// invocation. Engines use it to react to new tasks and sharings. The
// callback runs outside the ledger lock and may invoke ledger methods.
func (l *Ledger) Subscribe(observer func()) {
	l.mu.Lock()
	l.observers = append(l.observers, observer)
	l.mu.Unlock()
}

func (l *Ledger) notify() {
	l.mu.Lock()
	observers := make([]func(), len(l.observers))
	copy(observers, l.observers)
	l.mu.Unlock()
	for _, observer := range observers {
		observer()
	}
}

// Engines returns the engine configurations serving the contracts.
func (l *Ledger) Engines() []contract.EngineConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sharing.Engines()
}

// NodeIndex returns the engine slot for the given address.
func (l *Ledger) NodeIndex(addr chain.Address) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sharing.NodeIndex(addr)
}

// RegisterSharing registers a new secret sharing owned by sender.
func (l *Ledger) RegisterSharing(sender chain.Address, id contract.SharingID, commitments []chain.Hash) error {
	l.mu.Lock()
	err := l.sharing.RegisterSharing(sender, id, commitments)
	l.mu.Unlock()
	if err == nil {
		l.notify()
	}
	return err
}

// RegisterShared records that the sending engine has stored its share.
func (l *Ledger) RegisterShared(sender chain.Address, id contract.SharingID) error {
	l.mu.Lock()
	err := l.sharing.RegisterShared(sender, id)
	l.mu.Unlock()
	if err == nil {
		l.notify()
	}
	return err
}

// RequestDownload opens the download window for the sharing, stamped with
// the current block time.
func (l *Ledger) RequestDownload(sender chain.Address, id contract.SharingID) error {
	l.mu.Lock()
	err := l.sharing.RequestDownload(sender, id, l.now())
	l.mu.Unlock()
	if err == nil {
		l.notify()
	}
	return err
}

// Sharing returns a snapshot of the sharing with the given id.
func (l *Ledger) Sharing(id contract.SharingID) (contract.Sharing, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sharing.Sharing(id)
}

// Now returns the current block time.
func (l *Ledger) Now() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now()
}

// CommitToRandomness records the sending engine's randomness commitment.
func (l *Ledger) CommitToRandomness(sender chain.Address, taskID taskqueue.TaskID, commitment chain.Hash) error {
	l.mu.Lock()
	err := l.randomness.CommitToRandomness(sender, taskID, commitment)
	l.mu.Unlock()
	if err == nil {
		l.notify()
	}
	return err
}

// UploadRandomness records the sending engine's revealed randomness.
func (l *Ledger) UploadRandomness(sender chain.Address, taskID taskqueue.TaskID, randomness []byte) error {
	l.mu.Lock()
	err := l.randomness.UploadRandomness(sender, taskID, randomness)
	l.mu.Unlock()
	if err == nil {
		l.notify()
	}
	return err
}

// ConsumeRandomness returns the combined randomness of the finished round
// and starts the next one.
func (l *Ledger) ConsumeRandomness() ([]byte, error) {
	l.mu.Lock()
	randomness, err := l.randomness.ConsumeRandomness()
	l.mu.Unlock()
	if err == nil {
		l.notify()
	}
	return randomness, err
}

// CurrentCommitTask returns the live commit task as seen by the engine.
func (l *Ledger) CurrentCommitTask(engineIndex int) (contract.RandomnessTaskView, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.randomness.CurrentCommitTask(engineIndex)
}

// CurrentUploadTask returns the live upload task as seen by the engine.
func (l *Ledger) CurrentUploadTask(engineIndex int) (contract.RandomnessTaskView, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.randomness.CurrentUploadTask(engineIndex)
}
