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
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/partisiablockchain/offchain-secret-sharing/chain"
	"github.com/partisiablockchain/offchain-secret-sharing/constants"
)

func testContribution(seed byte) []byte {
	contribution := make([]byte, constants.RandomnessLength)
	for i := range contribution {
		contribution[i] = seed
	}
	return contribution
}

// runCommitPhase commits every engine's contribution hash to the current
// commit task and returns the contributions in engine order.
func runCommitPhase(t *testing.T, contract *PublishRandomness) [][]byte {
	t.Helper()
	engines := contract.Engines()
	contributions := make([][]byte, len(engines))
	for i, engine := range engines {
		task, exists := contract.CurrentCommitTask(i)
		if !exists {
			t.Fatal("no commit task available")
		}
		contributions[i] = testContribution(byte(i + 1))
		err := contract.CommitToRandomness(engine.Address, task.ID, chain.HashOf(contributions[i]))
		if err != nil {
			t.Fatalf("CommitToRandomness failed for engine %d: %v", i, err)
		}
	}
	return contributions
}

func TestRandomnessRound(t *testing.T) {
	contract := NewPublishRandomness(testEngines(4))
	contributions := runCommitPhase(t, contract)

	// Committing is done, revealing has not started.
	if _, err := contract.ConsumeRandomness(); !errors.Is(err, ErrNoRandomnessAvailable) {
		t.Errorf("got %v, want ErrNoRandomnessAvailable", err)
	}

	for i, engine := range contract.Engines() {
		task, exists := contract.CurrentUploadTask(i)
		if !exists {
			t.Fatal("no upload task after all commitments")
		}
		if err := contract.UploadRandomness(engine.Address, task.ID, contributions[i]); err != nil {
			t.Fatalf("UploadRandomness failed for engine %d: %v", i, err)
		}
	}

	randomness, err := contract.ConsumeRandomness()
	if err != nil {
		t.Fatalf("ConsumeRandomness failed: %v", err)
	}
	want := make([]byte, constants.RandomnessLength)
	for _, contribution := range contributions {
		for i := range contribution {
			want[i] ^= contribution[i]
		}
	}
	if !bytes.Equal(randomness, want) {
		t.Errorf("randomness = %x, want %x", randomness, want)
	}
}

func TestConsumeStartsNextRound(t *testing.T) {
	contract := NewPublishRandomness(testEngines(2))
	contributions := runCommitPhase(t, contract)
	for i, engine := range contract.Engines() {
		task, _ := contract.CurrentUploadTask(i)
		if err := contract.UploadRandomness(engine.Address, task.ID, contributions[i]); err != nil {
			t.Fatalf("UploadRandomness failed: %v", err)
		}
	}
	if _, err := contract.ConsumeRandomness(); err != nil {
		t.Fatalf("ConsumeRandomness failed: %v", err)
	}

	// Consumption kicks off a fresh commit phase.
	task, exists := contract.CurrentCommitTask(0)
	if !exists {
		t.Fatal("no commit task after consumption")
	}
	if task.Reported {
		t.Error("fresh commit task already reported")
	}
	if _, err := contract.ConsumeRandomness(); !errors.Is(err, ErrNoRandomnessAvailable) {
		t.Errorf("second consume got %v, want ErrNoRandomnessAvailable", err)
	}
}

func TestConsumeBeforeGenerationFails(t *testing.T) {
	contract := NewPublishRandomness(testEngines(4))
	if _, err := contract.ConsumeRandomness(); !errors.Is(err, ErrNoRandomnessAvailable) {
		t.Errorf("got %v, want ErrNoRandomnessAvailable", err)
	}
}

func TestCommitRejectsNonEngine(t *testing.T) {
	contract := NewPublishRandomness(testEngines(4))
	task, _ := contract.CurrentCommitTask(0)
	err := contract.CommitToRandomness(testAddress(0x01), task.ID, chain.HashOf([]byte("x")))
	if !errors.Is(err, ErrNotAnEngine) {
		t.Errorf("got %v, want ErrNotAnEngine", err)
	}
}

func TestUploadRejectsNonEngine(t *testing.T) {
	contract := NewPublishRandomness(testEngines(4))
	runCommitPhase(t, contract)
	task, _ := contract.CurrentUploadTask(0)
	err := contract.UploadRandomness(testAddress(0x01), task.ID, testContribution(1))
	if !errors.Is(err, ErrNotAnEngine) {
		t.Errorf("got %v, want ErrNotAnEngine", err)
	}
}

func TestUploadRejectsMismatchedRandomness(t *testing.T) {
	contract := NewPublishRandomness(testEngines(4))
	runCommitPhase(t, contract)
	engines := contract.Engines()
	task, _ := contract.CurrentUploadTask(0)

	err := contract.UploadRandomness(engines[0].Address, task.ID, testContribution(0xFF))
	if err == nil {
		t.Fatal("mismatched randomness accepted")
	}
	if !strings.Contains(err.Error(), "doesn't match commitment") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestUploadRejectsWrongLength(t *testing.T) {
	contract := NewPublishRandomness(testEngines(4))
	runCommitPhase(t, contract)
	engines := contract.Engines()
	task, _ := contract.CurrentUploadTask(0)

	err := contract.UploadRandomness(engines[0].Address, task.ID, []byte("short"))
	if err == nil {
		t.Fatal("short randomness accepted")
	}
}

func TestTaskViewsTrackReporting(t *testing.T) {
	contract := NewPublishRandomness(testEngines(2))
	engines := contract.Engines()

	task, _ := contract.CurrentCommitTask(0)
	if task.Reported {
		t.Error("commit task reported before any commitment")
	}
	contribution := testContribution(1)
	if err := contract.CommitToRandomness(engines[0].Address, task.ID, chain.HashOf(contribution)); err != nil {
		t.Fatalf("CommitToRandomness failed: %v", err)
	}

	task, _ = contract.CurrentCommitTask(0)
	if !task.Reported {
		t.Error("commit task not marked reported for committing engine")
	}
	task, _ = contract.CurrentCommitTask(1)
	if task.Reported {
		t.Error("commit task marked reported for other engine")
	}
}
