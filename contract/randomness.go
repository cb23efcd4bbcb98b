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

package contract

import (
	"errors"
	"fmt"

	"github.com/partisiablockchain/offchain-secret-sharing/chain"
	"github.com/partisiablockchain/offchain-secret-sharing/constants"
	"github.com/partisiablockchain/offchain-secret-sharing/contract/taskqueue"
)

// CommitTask is the definition of a commit-phase task: every engine must
// commit to a fresh piece of randomness. The definition carries no data.
type CommitTask struct{}

// UploadTask is the definition of an upload-phase task: every engine must
// reveal the randomness matching its earlier commitment.
type UploadTask struct {
	// Commitments holds the hash each engine committed to, in engine order.
	Commitments []chain.Hash
}

// ErrNoRandomnessAvailable is returned by ConsumeRandomness while the
// engines are still generating. Consumption is not queued; callers retry
// once generation has finished.
var ErrNoRandomnessAvailable = errors.New("no randomness available")

// PublishRandomness is the on-chain contract coordinating the engines
// through a two-phase commit-then-reveal protocol producing one public
// random value per round.
//
// Each queue holds at most one live task at a time. The moment the commit
// task completes, the contract removes it and creates the upload task from
// the committed hashes; the moment the upload task completes, the combined
// randomness becomes consumable.
type PublishRandomness struct {
	engines     []EngineConfig
	commitQueue *taskqueue.Queue[CommitTask, chain.Hash]
	uploadQueue *taskqueue.Queue[UploadTask, []byte]
}

// NewPublishRandomness initializes the contract with the engines that serve
// it and starts the first generation round.
func NewPublishRandomness(engines []EngineConfig) *PublishRandomness {
	c := &PublishRandomness{
		engines:     engines,
		commitQueue: taskqueue.New[CommitTask, chain.Hash](len(engines)),
		uploadQueue: taskqueue.New[UploadTask, []byte](len(engines)),
	}
	c.commitQueue.Push(CommitTask{})
	return c
}

// Engines returns the configurations of all engines serving the contract.
func (c *PublishRandomness) Engines() []EngineConfig {
	return append([]EngineConfig(nil), c.engines...)
}

// EngineIndex returns the slot of the engine with the given address.
func (c *PublishRandomness) EngineIndex(addr chain.Address) (int, bool) {
	for i, engine := range c.engines {
		if engine.Address == addr {
			return i, true
		}
	}
	return 0, false
}

// ConsumeRandomness returns the combined randomness of the completed round
// and starts generating the next round. Fails while generation is still in
// flight.
func (c *PublishRandomness) ConsumeRandomness() ([]byte, error) {
	task, exists := c.uploadQueue.Get(c.uploadQueue.Current())
	if !exists {
		return nil, ErrNoRandomnessAvailable
	}
	contributions, complete := task.AllCompletionData()
	if !complete {
		return nil, ErrNoRandomnessAvailable
	}

	randomness := make([]byte, constants.RandomnessLength)
	for _, contribution := range contributions {
		for i := range contribution {
			randomness[i] ^= contribution[i]
		}
	}

	c.uploadQueue.Remove(task.ID())
	c.commitQueue.Push(CommitTask{})
	return randomness, nil
}

// CommitToRandomness records the calling engine's commitment for the given
// commit task. Only engines may call it. Once the last engine commits, the
// contract atomically removes the commit task and creates the upload task
// from the committed hashes.
func (c *PublishRandomness) CommitToRandomness(sender chain.Address, taskID taskqueue.TaskID, commitment chain.Hash) error {
	engineIndex, ok := c.EngineIndex(sender)
	if !ok {
		return ErrNotAnEngine
	}

	task, _, err := c.commitQueue.MarkCompletion(engineIndex, taskID, commitment)
	if err != nil {
		return fmt.Errorf("no such commit task: %v", err)
	}

	if commitments, complete := task.AllCompletionData(); complete {
		c.uploadQueue.Push(UploadTask{Commitments: commitments})
		c.commitQueue.Remove(taskID)
	}
	return nil
}

// UploadRandomness records the calling engine's revealed randomness for the
// given upload task. The randomness must hash to the engine's commitment.
func (c *PublishRandomness) UploadRandomness(sender chain.Address, taskID taskqueue.TaskID, randomness []byte) error {
	engineIndex, ok := c.EngineIndex(sender)
	if !ok {
		return ErrNotAnEngine
	}
	task, exists := c.uploadQueue.Get(taskID)
	if !exists {
		return fmt.Errorf("no such upload task %d", taskID)
	}
	if len(randomness) != constants.RandomnessLength {
		return fmt.Errorf("randomness must be %d bytes, got %d", constants.RandomnessLength, len(randomness))
	}
	if chain.HashOf(randomness) != task.Definition().Commitments[engineIndex] {
		return fmt.Errorf("uploaded randomness doesn't match commitment")
	}

	if _, _, err := c.uploadQueue.MarkCompletion(engineIndex, taskID, randomness); err != nil {
		return fmt.Errorf("no such upload task: %v", err)
	}
	return nil
}

// RandomnessTaskView is the engine-facing view of a live task.
type RandomnessTaskView struct {
	ID taskqueue.TaskID
	// Commitments is populated for upload tasks only.
	Commitments []chain.Hash
	// Reported marks whether the viewing engine has already filled its slot.
	Reported bool
}

// CurrentCommitTask returns the live commit task as seen by the given
// engine, if one exists.
func (c *PublishRandomness) CurrentCommitTask(engineIndex int) (RandomnessTaskView, bool) {
	task, exists := c.commitQueue.Get(c.commitQueue.Current())
	if !exists {
		return RandomnessTaskView{}, false
	}
	return RandomnessTaskView{
		ID:       task.ID(),
		Reported: task.HasReported(engineIndex),
	}, true
}

// CurrentUploadTask returns the live upload task as seen by the given
// engine, if one exists.
func (c *PublishRandomness) CurrentUploadTask(engineIndex int) (RandomnessTaskView, bool) {
	task, exists := c.uploadQueue.Get(c.uploadQueue.Current())
	if !exists {
		return RandomnessTaskView{}, false
	}
	return RandomnessTaskView{
		ID:          task.ID(),
		Commitments: task.Definition().Commitments,
		Reported:    task.HasReported(engineIndex),
	}, true
}
