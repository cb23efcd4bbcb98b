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
	"fmt"

	"github.com/partisiablockchain/offchain-secret-sharing/chain"
	"github.com/partisiablockchain/offchain-secret-sharing/client/internal/secretsharing/gf256"
	"github.com/partisiablockchain/offchain-secret-sharing/client/internal/secretsharing/poly"
)

// ShamirConfig configures the Shamir threshold scheme.
type ShamirConfig struct {
	// NumMalicious is the number of share holders that may supply incorrect
	// data while still allowing correct reconstruction. It is the degree of
	// the share-generating polynomials.
	NumMalicious int
	// NumNodes is the number of nodes the secret is split over. It determines
	// how many evaluation points are allocated.
	NumNodes int
	// NumToReconstruct is the number of consistent shares required to
	// reconstruct the secret.
	NumToReconstruct int
}

// DefaultShamirConfig splits over four nodes with degree-1 polynomials, so
// any two correct shares reconstruct the secret. The threshold is below
// 2*NumMalicious+1, so shares must be authenticated against their on-chain
// commitments before reconstruction.
var DefaultShamirConfig = ShamirConfig{NumMalicious: 1, NumNodes: 4, NumToReconstruct: 2}

// Validate checks the configuration invariants. Reconstruction needs at
// least NumMalicious+1 shares to recover the polynomial's constant term.
// When NumToReconstruct < 2*NumMalicious+1 the shares cannot be
// self-verified by interpolation alone and shares must be authenticated
// externally, by checking them against their on-chain commitments.
func (c ShamirConfig) Validate() error {
	if c.NumMalicious < 0 {
		return fmt.Errorf("number of malicious nodes must not be negative, was %d", c.NumMalicious)
	}
	if c.NumNodes < MinXorShares {
		return fmt.Errorf("shamir secret sharing requires at least %d nodes, but specified only %d", MinXorShares, c.NumNodes)
	}
	if c.NumToReconstruct < c.NumMalicious+1 {
		return fmt.Errorf("reconstruction threshold %d is below the minimum %d required by %d malicious nodes",
			c.NumToReconstruct, c.NumMalicious+1, c.NumMalicious)
	}
	if c.NumToReconstruct > c.NumNodes {
		return fmt.Errorf("reconstruction threshold %d exceeds the number of nodes %d", c.NumToReconstruct, c.NumNodes)
	}
	return nil
}

// ShamirSecretShares is a secret sharing based on Shamir's scheme: each
// plain-text byte is the constant term of a random degree-NumMalicious
// polynomial, and node i holds the polynomial's evaluation at its alpha.
type ShamirSecretShares struct {
	config ShamirConfig
	alphas []gf256.Element
	// shares has one entry per node; nil marks a withheld share.
	shares [][]byte
}

var _ SecretShares = (*ShamirSecretShares)(nil)

type shamirFactory struct {
	config ShamirConfig
}

// NewShamirFactory returns a Factory producing ShamirSecretShares for the
// given configuration.
func NewShamirFactory(config ShamirConfig) Factory {
	return shamirFactory{config: config}
}

// FromPlainText splits the plain text over the configured nodes. numNodes
// must match the configuration, since the node-to-alpha mapping is part of
// the scheme.
func (f shamirFactory) FromPlainText(numNodes int, plainText []byte) (SecretShares, error) {
	if err := f.config.Validate(); err != nil {
		return nil, err
	}
	if numNodes != f.config.NumNodes {
		return nil, fmt.Errorf("shamir secret sharing is configured for %d nodes, but tried to create %d shares", f.config.NumNodes, numNodes)
	}

	alphas, err := gf256.Alphas(numNodes)
	if err != nil {
		return nil, err
	}

	shares := make([][]byte, numNodes)
	for i := range shares {
		shares[i] = make([]byte, len(plainText))
	}

	for byteIndex, secretByte := range plainText {
		polynomial, err := poly.Random(gf256.Element(secretByte), f.config.NumMalicious)
		if err != nil {
			return nil, err
		}
		for nodeIndex, alpha := range alphas {
			shares[nodeIndex][byteIndex] = byte(polynomial.Evaluate(alpha))
		}
	}

	return &ShamirSecretShares{config: f.config, alphas: alphas, shares: shares}, nil
}

// FromSharesBytes wraps the share bytes received from the nodes, preserving
// holes for missing shares. Construction fails if fewer than
// NumToReconstruct shares are present, or if the present shares disagree on
// the share length.
func (f shamirFactory) FromSharesBytes(shares [][]byte) (SecretShares, error) {
	if err := f.config.Validate(); err != nil {
		return nil, err
	}
	if len(shares) != f.config.NumNodes {
		return nil, fmt.Errorf("shamir secret sharing is configured for %d nodes, but received %d shares", f.config.NumNodes, len(shares))
	}

	alphas, err := gf256.Alphas(f.config.NumNodes)
	if err != nil {
		return nil, err
	}

	numPresent := 0
	shareLength := -1
	for i, share := range shares {
		if share == nil {
			continue
		}
		numPresent++
		if shareLength == -1 {
			shareLength = len(share)
		} else if len(share) != shareLength {
			return nil, fmt.Errorf("share %d has length %d, other shares have length %d", i, len(share), shareLength)
		}
	}
	if numPresent < f.config.NumToReconstruct {
		return nil, fmt.Errorf("%w: only %d of the required %d shares are present",
			ErrUnableToReconstruct, numPresent, f.config.NumToReconstruct)
	}

	return &ShamirSecretShares{config: f.config, alphas: alphas, shares: shares}, nil
}

// NumShares returns the number of node slots, including missing shares.
func (s *ShamirSecretShares) NumShares() int {
	return len(s.shares)
}

// ShareBytes returns the share owned by the given node index, nil if missing.
func (s *ShamirSecretShares) ShareBytes(nodeIndex int) []byte {
	return s.shares[nodeIndex]
}

// Commitments returns one hash per share, in node order.
func (s *ShamirSecretShares) Commitments() []chain.Hash {
	return commitments(s.shares)
}

// ReconstructPlainText interpolates each plain-text byte through the defined
// (alpha, share byte) points. When NumToReconstruct >= 2*NumMalicious+1 the
// reconstruction is tolerant of up to NumMalicious incorrect shares:
// candidate polynomials are interpolated from subsets of NumMalicious+1
// points and accepted only when consistent with at least NumToReconstruct of
// the defined points. If no consistent polynomial exists, reconstruction
// fails explicitly rather than returning garbage.
func (s *ShamirSecretShares) ReconstructPlainText() ([]byte, error) {
	defined := make([]int, 0, len(s.shares))
	for i, share := range s.shares {
		if share != nil {
			defined = append(defined, i)
		}
	}
	if len(defined) < s.config.NumToReconstruct {
		return nil, fmt.Errorf("%w: only %d of the required %d shares are present",
			ErrUnableToReconstruct, len(defined), s.config.NumToReconstruct)
	}

	plainText := make([]byte, len(s.shares[defined[0]]))
	points := make([]poly.Point, len(defined))
	for byteIndex := range plainText {
		for j, nodeIndex := range defined {
			points[j] = poly.Point{X: s.alphas[nodeIndex], Y: gf256.Element(s.shares[nodeIndex][byteIndex])}
		}
		recovered, err := s.reconstructByte(points)
		if err != nil {
			return nil, err
		}
		plainText[byteIndex] = recovered
	}
	return plainText, nil
}

// reconstructByte finds a degree-NumMalicious polynomial consistent with at
// least NumToReconstruct of the defined points and returns its constant term.
func (s *ShamirSecretShares) reconstructByte(points []poly.Point) (byte, error) {
	subsetSize := s.config.NumMalicious + 1
	subset := make([]poly.Point, subsetSize)

	var recovered byte
	found := visitCombinations(len(points), subsetSize, func(indices []int) bool {
		for j, idx := range indices {
			subset[j] = points[idx]
		}
		candidate, err := poly.Interpolate(subset)
		if err != nil {
			return false
		}

		agreement := 0
		for _, point := range points {
			if candidate.Evaluate(point.X) == point.Y {
				agreement++
			}
		}
		if agreement >= s.config.NumToReconstruct {
			recovered = byte(candidate.ConstantTerm())
			return true
		}
		return false
	})
	if !found {
		return 0, ErrUnableToReconstruct
	}
	return recovered, nil
}

// visitCombinations visits every k-combination of {0..n-1} in lexicographic
// order until the visitor returns true. Returns whether any visit succeeded.
func visitCombinations(n, k int, visit func(indices []int) bool) bool {
	if k > n {
		return false
	}
	indices := make([]int, k)
	for i := range indices {
		indices[i] = i
	}
	for {
		if visit(indices) {
			return true
		}
		// Advance to the next combination.
		i := k - 1
		for i >= 0 && indices[i] == n-k+i {
			i--
		}
		if i < 0 {
			return false
		}
		indices[i]++
		for j := i + 1; j < k; j++ {
			indices[j] = indices[j-1] + 1
		}
	}
}
