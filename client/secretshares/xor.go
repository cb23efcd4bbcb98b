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

package secretshares

import (
	"crypto/rand"
	"fmt"

	"github.com/partisiablockchain/offchain-secret-sharing/chain"
)

// MinXorShares is the least number of shares supported by the XOR scheme.
const MinXorShares = 2

// XorSecretShares is a secret sharing based on XOR. Reconstruction requires
// every share: the scheme tolerates no missing or malicious shares.
type XorSecretShares struct {
	shares [][]byte
}

var _ SecretShares = (*XorSecretShares)(nil)

type xorFactory struct{}

// NewXorFactory returns a Factory producing XorSecretShares.
func NewXorFactory() Factory {
	return xorFactory{}
}

// FromPlainText splits the plain text into numNodes shares: numNodes-1
// uniformly random byte strings, and a final share XORing them all with the
// plain text.
func (xorFactory) FromPlainText(numNodes int, plainText []byte) (SecretShares, error) {
	if numNodes < MinXorShares {
		return nil, fmt.Errorf("xor secret sharing requires at least %d shares, but specified only %d", MinXorShares, numNodes)
	}

	shares := make([][]byte, 0, numNodes)
	for i := 0; i < numNodes-1; i++ {
		share := make([]byte, len(plainText))
		if _, err := rand.Read(share); err != nil {
			return nil, fmt.Errorf("unable to generate random share: %v", err)
		}
		shares = append(shares, share)
	}

	lastShare := xorByteArrays(len(plainText), shares)
	xorInto(lastShare, plainText)
	shares = append(shares, lastShare)

	return &XorSecretShares{shares: shares}, nil
}

// FromSharesBytes wraps the received shares. Every share must be present:
// a hole makes construction fail, as does a share count below the minimum.
func (xorFactory) FromSharesBytes(shares [][]byte) (SecretShares, error) {
	if len(shares) < MinXorShares {
		return nil, fmt.Errorf("xor secret sharing requires at least %d shares, but specified only %d", MinXorShares, len(shares))
	}
	for i, share := range shares {
		if share == nil {
			return nil, fmt.Errorf("xor secret sharing requires every share, but share %d is missing", i)
		}
		if len(share) != len(shares[0]) {
			return nil, fmt.Errorf("share %d has length %d, other shares have length %d", i, len(share), len(shares[0]))
		}
	}
	return &XorSecretShares{shares: shares}, nil
}

// NumShares returns the number of shares.
func (x *XorSecretShares) NumShares() int {
	return len(x.shares)
}

// ShareBytes returns the share owned by the given node index.
func (x *XorSecretShares) ShareBytes(nodeIndex int) []byte {
	return x.shares[nodeIndex]
}

// ReconstructPlainText XOR-combines all shares back into the plain text.
func (x *XorSecretShares) ReconstructPlainText() ([]byte, error) {
	return xorByteArrays(len(x.shares[0]), x.shares), nil
}

// Commitments returns one hash per share, in node order.
func (x *XorSecretShares) Commitments() []chain.Hash {
	return commitments(x.shares)
}

func xorByteArrays(length int, manyBytes [][]byte) []byte {
	result := make([]byte, length)
	for _, bytes := range manyBytes {
		xorInto(result, bytes)
	}
	return result
}

func xorInto(dst, src []byte) {
	for i := range src {
		dst[i] ^= src[i]
	}
}
