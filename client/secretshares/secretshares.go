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

// Package secretshares implements the secret-sharing schemes used to spread
// a plain text across the engines of an off-chain secret-sharing contract:
// an XOR scheme requiring every share for reconstruction, and a Shamir
// threshold scheme tolerating missing and malicious shares.
package secretshares

import (
	"errors"
	"fmt"

	glog "github.com/golang/glog"
	"github.com/partisiablockchain/offchain-secret-sharing/chain"
)

// SecretShares is the capability shared by all secret-sharing schemes.
//
// Instances are constructed either from a plain text (splitting) or from the
// share bytes returned by the engines (possibly containing holes), and are
// immutable afterwards.
type SecretShares interface {
	// NumShares returns the number of shares the secret is split over.
	NumShares() int
	// ShareBytes returns the share owned by the given node index, or nil if
	// that node's share is missing.
	ShareBytes(nodeIndex int) []byte
	// ReconstructPlainText recovers the plain text from the shares.
	ReconstructPlainText() ([]byte, error)
	// Commitments returns one hash per share, in node order. Commitment i
	// binds the share owned by node i.
	Commitments() []chain.Hash
}

// Factory creates SecretShares instances for a specific scheme. Scheme
// selection is an explicit construction-time choice; no runtime type
// inspection is involved.
type Factory interface {
	// FromPlainText splits the plain text into one share per node.
	FromPlainText(numNodes int, plainText []byte) (SecretShares, error)
	// FromSharesBytes wraps the share bytes received from the nodes. A nil
	// entry marks a node that withheld its share; an empty non-nil entry is a
	// node that sent zero bytes. The two are never coalesced.
	FromSharesBytes(shares [][]byte) (SecretShares, error)
}

// ErrUnableToReconstruct is returned when too few valid shares remain to
// recover the secret. Reconstruction never returns partial or guessed plain
// text.
var ErrUnableToReconstruct = errors.New("unable to reconstruct secret")

// CommitmentFor computes the commitment binding the given share bytes.
func CommitmentFor(share []byte) chain.Hash {
	return chain.HashOf(share)
}

// FilterSharesFromCommitments compares received shares against their expected
// on-chain commitments, positionally. Shares that are absent stay absent;
// shares whose hash does not match the expected commitment are degraded to
// absent, since a mismatch is the signal of a malicious or faulty engine.
// Matching shares pass through unchanged.
func FilterSharesFromCommitments(expected []chain.Hash, received [][]byte) ([][]byte, error) {
	if len(expected) != len(received) {
		return nil, fmt.Errorf("got %d shares for %d commitments", len(received), len(expected))
	}

	filtered := make([][]byte, len(received))
	for i, share := range received {
		if share == nil {
			continue
		}
		if CommitmentFor(share) != expected[i] {
			glog.Warningf("Share %d does not match its on-chain commitment, discarding it", i)
			continue
		}
		filtered[i] = share
	}
	return filtered, nil
}

// commitments hashes each share in node order. A missing share yields the
// zero hash; commitments are only meaningful for complete share sets.
func commitments(shares [][]byte) []chain.Hash {
	result := make([]chain.Hash, len(shares))
	for i, share := range shares {
		if share != nil {
			result[i] = CommitmentFor(share)
		}
	}
	return result
}
