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

// Package constants contains shared constants between the sharing client and
// the engine servers.
package constants

import "time"

// NonceLength is the length in bytes of the random nonce prefixed to every
// plain text before it is split into shares. The nonce makes commitments
// unpredictable, so an observer of the on-chain commitments cannot confirm a
// guess of a short plain text by hashing candidate shares.
const NonceLength = 32

// AuthorizationScheme is the scheme token of the Authorization header used
// for signed share requests.
const AuthorizationScheme = "secp256k1"

// DownloadWindow is how long share downloads stay available after a download
// has been requested on-chain.
const DownloadWindow = 10 * time.Minute

// MaxUploadAttempts is the number of times the client attempts to upload a
// share to an engine before giving up.
const MaxUploadAttempts = 10

// RandomnessLength is the length in bytes of the randomness contributed by
// each engine to the publish-randomness contract.
const RandomnessLength = 32

// EngineBasePort is the default port of the first engine in a locally hosted
// engine network. Subsequent engines use the following ports.
const EngineBasePort = 9820
