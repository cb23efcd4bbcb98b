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

package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// AddressLength is the length in bytes of an Address.
const AddressLength = 21

// addressTypeAccount is the type discriminator prefixed to account addresses.
const addressTypeAccount = 0x00

// Address identifies an account on the chain. The first byte is the address
// type, the remaining 20 bytes are derived from the account's public key.
type Address [AddressLength]byte

// AddressFromPublicKey derives the account Address for a secp256k1 public
// key: the last 20 bytes of the SHA-256 digest of the uncompressed key,
// prefixed with the account type byte.
func AddressFromPublicKey(pub *secp256k1.PublicKey) Address {
	digest := sha256.Sum256(pub.SerializeUncompressed())

	var addr Address
	addr[0] = addressTypeAccount
	copy(addr[1:], digest[12:32])
	return addr
}

// String returns the hex encoding of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// ParseAddress decodes a hex-encoded address.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("invalid address encoding: %v", err)
	}
	if len(b) != AddressLength {
		return a, fmt.Errorf("invalid address length %d, want %d", len(b), AddressLength)
	}
	copy(a[:], b)
	return a, nil
}
