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

// Package chain contains the blockchain primitives shared between the
// sharing client, the on-chain contracts and the engine servers: addresses,
// hashes and the recoverable signatures used to authenticate off-chain HTTP
// requests.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashLength is the length in bytes of a Hash.
const HashLength = 32

// Hash is a SHA-256 digest. Share commitments are hashes of share bytes.
type Hash [HashLength]byte

// HashOf computes the Hash of the given data.
func HashOf(data []byte) Hash {
	return sha256.Sum256(data)
}

// String returns the hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash decodes a hex-encoded hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash encoding: %v", err)
	}
	if len(b) != HashLength {
		return h, fmt.Errorf("invalid hash length %d, want %d", len(b), HashLength)
	}
	copy(h[:], b)
	return h, nil
}
