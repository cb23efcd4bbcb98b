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

// Package contract implements the on-chain state machines of the off-chain
// secret-sharing system: the secret-sharing registry and the
// publish-randomness task-queue barrier.
//
// Contracts are single-threaded by construction: the surrounding ledger
// applies each invocation atomically and in isolation, so the state machines
// themselves hold no locks.
package contract

import (
	"errors"
	"fmt"
	"time"

	"github.com/partisiablockchain/offchain-secret-sharing/chain"
	"github.com/partisiablockchain/offchain-secret-sharing/constants"
)

// SharingID identifies a registered secret sharing.
type SharingID uint64

// EngineConfig describes one engine assigned to a contract.
type EngineConfig struct {
	// Address is the blockchain address of the engine, used to verify the
	// engine's transactions.
	Address chain.Address `json:"address"`
	// Endpoint is the HTTP endpoint users reach the engine by.
	Endpoint string `json:"endpoint"`
}

// ErrUnknownSharing is returned for operations on a sharing id that was
// never registered.
var ErrUnknownSharing = errors.New("unknown sharing")

// ErrNotAnEngine is returned when an engine-only action is invoked by an
// address that is not one of the configured engines.
var ErrNotAnEngine = errors.New("caller is not one of the engines")

// Sharing is the on-chain record of one registered secret sharing.
type Sharing struct {
	// Owner registered the sharing and is the only account allowed to upload
	// and download its shares.
	Owner chain.Address
	// ShareCommitments holds one hash per node, in node order. Commitment i
	// binds the share uploaded to node i.
	ShareCommitments []chain.Hash
	// NodesWithCompletedUpload marks which nodes have confirmed their upload.
	// Flags only ever go from false to true, and each slot is written only by
	// its own engine.
	NodesWithCompletedUpload []bool
	// DownloadDeadline is the time until which downloads stay available. The
	// zero value means no download has been requested.
	DownloadDeadline time.Time
}

// FullyUploaded reports whether every node has confirmed its upload.
func (s *Sharing) FullyUploaded() bool {
	for _, uploaded := range s.NodesWithCompletedUpload {
		if !uploaded {
			return false
		}
	}
	return true
}

// DownloadAllowed reports whether a download is currently permitted: one has
// been requested and the deadline has not passed.
func (s *Sharing) DownloadAllowed(now time.Time) bool {
	return !s.DownloadDeadline.IsZero() && !now.After(s.DownloadDeadline)
}

// OffChainSecretSharing is the on-chain registry of secret sharings served
// by a fixed set of engines.
type OffChainSecretSharing struct {
	nodes    []EngineConfig
	sharings map[SharingID]*Sharing
}

// NewOffChainSecretSharing initializes the contract with the engines that
// serve it.
func NewOffChainSecretSharing(nodes []EngineConfig) *OffChainSecretSharing {
	return &OffChainSecretSharing{
		nodes:    nodes,
		sharings: map[SharingID]*Sharing{},
	}
}

// Engines returns the configurations of all engines serving the contract.
func (c *OffChainSecretSharing) Engines() []EngineConfig {
	return append([]EngineConfig(nil), c.nodes...)
}

// NodeIndex returns the node slot of the engine with the given address.
func (c *OffChainSecretSharing) NodeIndex(addr chain.Address) (int, bool) {
	for i, node := range c.nodes {
		if node.Address == addr {
			return i, true
		}
	}
	return 0, false
}

// RegisterSharing registers a new sharing with the given id and per-node
// share commitments. The sender becomes the owner. Fails if the id is
// already in use or the commitment count does not match the node count.
func (c *OffChainSecretSharing) RegisterSharing(sender chain.Address, id SharingID, commitments []chain.Hash) error {
	if _, exists := c.sharings[id]; exists {
		return fmt.Errorf("cannot register sharing with the same identifier")
	}
	if len(commitments) != len(c.nodes) {
		return fmt.Errorf("invalid number of share commitments: got %d, want %d", len(commitments), len(c.nodes))
	}

	c.sharings[id] = &Sharing{
		Owner:                    sender,
		ShareCommitments:         append([]chain.Hash(nil), commitments...),
		NodesWithCompletedUpload: make([]bool, len(c.nodes)),
	}
	return nil
}

// RegisterShared records that the calling engine has stored its share of the
// given sharing. Only engines may call it. Setting an already-set flag is a
// no-op.
func (c *OffChainSecretSharing) RegisterShared(sender chain.Address, id SharingID) error {
	nodeIndex, ok := c.NodeIndex(sender)
	if !ok {
		return ErrNotAnEngine
	}
	sharing, exists := c.sharings[id]
	if !exists {
		return ErrUnknownSharing
	}
	sharing.NodesWithCompletedUpload[nodeIndex] = true
	return nil
}

// RequestDownload opens the download window for the sharing: the deadline is
// set to now plus the fixed window. Only the owner may request a download,
// and only once every node has confirmed its upload.
func (c *OffChainSecretSharing) RequestDownload(sender chain.Address, id SharingID, now time.Time) error {
	sharing, exists := c.sharings[id]
	if !exists {
		return ErrUnknownSharing
	}
	if sharing.Owner != sender {
		return fmt.Errorf("caller is not the owner of the sharing")
	}
	if !sharing.FullyUploaded() {
		return fmt.Errorf("shares haven't been uploaded to all nodes yet")
	}
	sharing.DownloadDeadline = now.Add(constants.DownloadWindow)
	return nil
}

// Sharing returns a copy of the on-chain record for the given id.
func (c *OffChainSecretSharing) Sharing(id SharingID) (Sharing, bool) {
	sharing, exists := c.sharings[id]
	if !exists {
		return Sharing{}, false
	}
	view := Sharing{
		Owner:                    sharing.Owner,
		ShareCommitments:         append([]chain.Hash(nil), sharing.ShareCommitments...),
		NodesWithCompletedUpload: append([]bool(nil), sharing.NodesWithCompletedUpload...),
		DownloadDeadline:         sharing.DownloadDeadline,
	}
	return view, true
}
