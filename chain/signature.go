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
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SignatureLength is the length in bytes of a serialized Signature.
const SignatureLength = 65

// compactSigMagicOffset is the header offset used by the compact signature
// format of the secp256k1 library. The chain serialization stores the bare
// recovery id (0-3) instead.
const compactSigMagicOffset = 27

// Signature is a recoverable ECDSA signature over the secp256k1 curve,
// serialized as the recovery id followed by the R and S values.
type Signature [SignatureLength]byte

// String returns the hex encoding of the signature.
func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

// ParseSignature decodes a hex-encoded signature.
func ParseSignature(str string) (Signature, error) {
	var s Signature
	b, err := hex.DecodeString(str)
	if err != nil {
		return s, fmt.Errorf("invalid signature encoding: %v", err)
	}
	if len(b) != SignatureLength {
		return s, fmt.Errorf("invalid signature length %d, want %d", len(b), SignatureLength)
	}
	copy(s[:], b)
	return s, nil
}

// RecoverAddress recovers the Address of the key that produced the signature
// over the given message. The message is hashed before recovery, matching
// KeyPair.SignMessage.
func (s Signature) RecoverAddress(message []byte) (Address, error) {
	if s[0] > 3 {
		return Address{}, fmt.Errorf("invalid signature recovery id %d", s[0])
	}

	compact := make([]byte, SignatureLength)
	compact[0] = s[0] + compactSigMagicOffset
	copy(compact[1:], s[1:])

	digest := HashOf(message)
	pub, _, err := ecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return Address{}, fmt.Errorf("unable to recover public key: %v", err)
	}
	return AddressFromPublicKey(pub), nil
}

// KeyPair holds a secp256k1 private key and can sign messages on behalf of
// the derived account address.
type KeyPair struct {
	priv *secp256k1.PrivateKey
}

// GenerateKeyPair creates a KeyPair with a fresh random private key.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("unable to generate private key: %v", err)
	}
	return &KeyPair{priv: priv}, nil
}

// KeyPairFromHex creates a KeyPair from a hex-encoded private key.
func KeyPairFromHex(s string) (*KeyPair, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid private key encoding: %v", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("invalid private key length %d, want 32", len(b))
	}
	return &KeyPair{priv: secp256k1.PrivKeyFromBytes(b)}, nil
}

// Address returns the account address of the key pair.
func (k *KeyPair) Address() Address {
	return AddressFromPublicKey(k.priv.PubKey())
}

// SignMessage hashes the message with SHA-256 and signs the digest, returning
// a recoverable signature.
func (k *KeyPair) SignMessage(message []byte) Signature {
	digest := HashOf(message)
	compact := ecdsa.SignCompact(k.priv, digest[:], false)

	var s Signature
	s[0] = compact[0] - compactSigMagicOffset
	copy(s[1:], compact[1:])
	return s
}
