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
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/partisiablockchain/offchain-secret-sharing/constants"
)

// SignedRequestMessage builds the canonical message binding an off-chain HTTP
// request to a specific engine and contract. The message consists of:
//
//   - engine address (raw bytes)
//   - contract address (raw bytes)
//   - request method, length-prefixed
//   - request URI, length-prefixed
//   - timestamp in unix milliseconds, big endian
//   - request body, length-prefixed
//
// Strings and the body are prefixed with their length as a big-endian uint32.
// The message is hashed and signed by the owner of the sharing; the engine
// recovers the signer address from the signature over the same message.
//
// The scheme has no replay protection beyond the on-chain download deadline:
// a leaked signed GET request stays valid until the deadline passes. This is
// a documented limitation of the protocol.
func SignedRequestMessage(engine, contract Address, method, uri string, timestampMillis int64, body []byte) []byte {
	buf := &bytes.Buffer{}
	buf.Write(engine[:])
	buf.Write(contract[:])
	writeLengthPrefixed(buf, []byte(method))
	writeLengthPrefixed(buf, []byte(uri))
	binary.Write(buf, binary.BigEndian, timestampMillis)
	writeLengthPrefixed(buf, body)
	return buf.Bytes()
}

func writeLengthPrefixed(buf *bytes.Buffer, data []byte) {
	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
}

// AuthorizationHeader formats the Authorization header value for a signed
// request: the scheme token, the hex signature and the signing timestamp.
func AuthorizationHeader(sig Signature, timestampMillis int64) string {
	return fmt.Sprintf("%s %s %d", constants.AuthorizationScheme, sig, timestampMillis)
}

// ParseAuthorizationHeader splits an Authorization header value into the
// signature and timestamp. Fails if the scheme token is not "secp256k1" or
// either part is malformed.
func ParseAuthorizationHeader(header string) (Signature, int64, error) {
	parts := strings.Split(header, " ")
	if len(parts) != 3 || parts[0] != constants.AuthorizationScheme {
		return Signature{}, 0, fmt.Errorf("malformed authorization header")
	}

	sig, err := ParseSignature(parts[1])
	if err != nil {
		return Signature{}, 0, err
	}
	timestampMillis, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Signature{}, 0, fmt.Errorf("invalid authorization timestamp: %v", err)
	}
	return sig, timestampMillis, nil
}
