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

// Binary to validate that an engine network conforms to the share transfer
// protocol: status codes, signature checks, commitment checks, and full
// client round trips. Runs everything in process and prints one line per
// check.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"flag"
	"github.com/alecthomas/colour"

	"github.com/partisiablockchain/offchain-secret-sharing/chain"
	"github.com/partisiablockchain/offchain-secret-sharing/chain/ledger"
	"github.com/partisiablockchain/offchain-secret-sharing/client"
	"github.com/partisiablockchain/offchain-secret-sharing/client/secretshares"
	"github.com/partisiablockchain/offchain-secret-sharing/constants"
	"github.com/partisiablockchain/offchain-secret-sharing/contract"
	"github.com/partisiablockchain/offchain-secret-sharing/server"
)

// network is a complete in-process deployment: ledger, engines, and the
// owner's keys.
type network struct {
	ledger       *ledger.Ledger
	contractAddr chain.Address
	ownerKeys    *chain.KeyPair
	engineKeys   []*chain.KeyPair
	stores       []server.ShareStore
	servers      []*httptest.Server
	endpoints    []string
}

func newNetwork(numEngines int) (*network, error) {
	ownerKeys, err := chain.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	n := &network{ownerKeys: ownerKeys}
	n.contractAddr[20] = 0xCC

	engines := make([]contract.EngineConfig, numEngines)
	for i := range engines {
		keys, err := chain.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		n.engineKeys = append(n.engineKeys, keys)
		engines[i] = contract.EngineConfig{Address: keys.Address()}
	}
	n.ledger = ledger.New(engines, time.Now)

	var workers []*server.RandomnessWorker
	for i := 0; i < numEngines; i++ {
		store := server.NewMemoryStore()
		engine := server.NewEngine(n.ledger, n.contractAddr, n.engineKeys[i], i, store, nil)
		srv := httptest.NewServer(engine.Handler())
		n.stores = append(n.stores, store)
		n.servers = append(n.servers, srv)
		n.endpoints = append(n.endpoints, srv.URL)

		worker := server.NewRandomnessWorker(n.ledger, n.engineKeys[i], i, nil)
		n.ledger.Subscribe(worker.OnStateChange)
		workers = append(workers, worker)
	}
	for _, worker := range workers {
		worker.OnStateChange()
	}
	return n, nil
}

func (n *network) close() {
	for _, srv := range n.servers {
		srv.Close()
	}
}

// chainView adapts the ledger for the client, substituting the in-process
// endpoints.
type chainView struct {
	*ledger.Ledger
	endpoints []string
}

func (c *chainView) Engines() []contract.EngineConfig {
	engines := c.Ledger.Engines()
	for i := range engines {
		engines[i].Endpoint = c.endpoints[i]
	}
	return engines
}

func (n *network) client(factory secretshares.Factory) *client.SecretSharingClient {
	view := &chainView{Ledger: n.ledger, endpoints: n.endpoints}
	return client.NewSecretSharingClient(view, n.contractAddr, n.ownerKeys, factory)
}

// request sends a raw request to engine 0, signed by signer when non-nil.
func (n *network) request(method, uri string, body []byte, signer *chain.KeyPair) (*http.Response, error) {
	req, err := http.NewRequest(method, n.endpoints[0]+uri, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if signer != nil {
		millis := time.Now().UnixMilli()
		message := chain.SignedRequestMessage(n.engineKeys[0].Address(), n.contractAddr, method, uri, millis, body)
		req.Header.Set("Authorization", chain.AuthorizationHeader(signer.SignMessage(message), millis))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp, nil
}

func (n *network) registerSharing(id contract.SharingID, share []byte) error {
	commitments := make([]chain.Hash, len(n.engineKeys))
	commitments[0] = chain.HashOf(share)
	for i := 1; i < len(commitments); i++ {
		commitments[i] = chain.HashOf([]byte{byte(i)})
	}
	return n.ledger.RegisterSharing(n.ownerKeys.Address(), id, commitments)
}

func testShare() []byte {
	share := make([]byte, constants.NonceLength+8)
	for i := range share {
		share[i] = byte(i)
	}
	return share
}

func expectStatus(resp *http.Response, err error, want int) error {
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		return fmt.Errorf("status %d, want %d", resp.StatusCode, want)
	}
	return nil
}

func testUploadCreates(n *network) error {
	share := testShare()
	if err := n.registerSharing(1, share); err != nil {
		return err
	}
	resp, err := n.request(http.MethodPut, "/shares/1", share, n.ownerKeys)
	return expectStatus(resp, err, http.StatusCreated)
}

func testRepeatedUploadConflicts(n *network) error {
	share := testShare()
	if err := n.registerSharing(1, share); err != nil {
		return err
	}
	if resp, err := n.request(http.MethodPut, "/shares/1", share, n.ownerKeys); err != nil || resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("first upload failed")
	}
	resp, err := n.request(http.MethodPut, "/shares/1", share, n.ownerKeys)
	return expectStatus(resp, err, http.StatusConflict)
}

func testUnknownSharingNotFound(n *network) error {
	resp, err := n.request(http.MethodPut, "/shares/9", testShare(), n.ownerKeys)
	return expectStatus(resp, err, http.StatusNotFound)
}

func testBadSignatureUnauthorized(n *network) error {
	share := testShare()
	if err := n.registerSharing(1, share); err != nil {
		return err
	}
	stranger, err := chain.GenerateKeyPair()
	if err != nil {
		return err
	}
	resp, err := n.request(http.MethodPut, "/shares/1", share, stranger)
	return expectStatus(resp, err, http.StatusUnauthorized)
}

func testCommitmentMismatchUnauthorized(n *network) error {
	if err := n.registerSharing(1, testShare()); err != nil {
		return err
	}
	tampered := testShare()
	tampered[constants.NonceLength] ^= 0xFF
	resp, err := n.request(http.MethodPut, "/shares/1", tampered, n.ownerKeys)
	return expectStatus(resp, err, http.StatusUnauthorized)
}

func testShortShareRejected(n *network) error {
	short := make([]byte, constants.NonceLength-1)
	if err := n.registerSharing(1, short); err != nil {
		return err
	}
	resp, err := n.request(http.MethodPut, "/shares/1", short, n.ownerKeys)
	return expectStatus(resp, err, http.StatusBadRequest)
}

func testDownloadBeforeRequestRejected(n *network) error {
	share := testShare()
	if err := n.registerSharing(1, share); err != nil {
		return err
	}
	if resp, err := n.request(http.MethodPut, "/shares/1", share, n.ownerKeys); err != nil || resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("upload failed")
	}
	resp, err := n.request(http.MethodGet, "/shares/1", nil, n.ownerKeys)
	return expectStatus(resp, err, http.StatusBadRequest)
}

func testWrongMethodNotAllowed(n *network) error {
	resp, err := n.request(http.MethodPost, "/shares/1", nil, nil)
	return expectStatus(resp, err, http.StatusMethodNotAllowed)
}

func testNonNumericIDRejected(n *network) error {
	resp, err := n.request(http.MethodGet, "/shares/abc", nil, nil)
	return expectStatus(resp, err, http.StatusBadRequest)
}

func testMalformedPathNotFound(n *network) error {
	resp, err := n.request(http.MethodGet, "/unknown/path", nil, nil)
	return expectStatus(resp, err, http.StatusNotFound)
}

func testXorRoundTrip(n *network) error {
	c := n.client(secretshares.NewXorFactory())
	secret := []byte("conformance secret")
	if err := c.RegisterAndUploadSharing(context.Background(), 1, secret); err != nil {
		return err
	}
	got, err := c.DownloadAndReconstruct(context.Background(), 1)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, secret) {
		return fmt.Errorf("reconstructed %q, want %q", got, secret)
	}
	return nil
}

func testShamirRoundTripWithEngineDown(n *network) error {
	c := n.client(secretshares.NewShamirFactory(secretshares.DefaultShamirConfig))
	secret := []byte("conformance secret")
	if err := c.RegisterAndUploadSharing(context.Background(), 1, secret); err != nil {
		return err
	}
	n.servers[3].Close()
	got, err := c.DownloadAndReconstruct(context.Background(), 1)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, secret) {
		return fmt.Errorf("reconstructed %q, want %q", got, secret)
	}
	return nil
}

func testRandomnessRound(n *network) error {
	randomness, err := n.ledger.ConsumeRandomness()
	if err != nil {
		return err
	}
	if len(randomness) != constants.RandomnessLength {
		return fmt.Errorf("randomness length %d, want %d", len(randomness), constants.RandomnessLength)
	}
	return nil
}

func main() {
	flag.Parse()

	testCases := []struct {
		testName string
		testFunc func(*network) error
	}{
		{"Upload stores share and returns 201", testUploadCreates},
		{"Repeated upload returns 409", testRepeatedUploadConflicts},
		{"Upload to unknown sharing returns 404", testUnknownSharingNotFound},
		{"Upload with foreign signature returns 401", testBadSignatureUnauthorized},
		{"Upload with mismatched commitment returns 401", testCommitmentMismatchUnauthorized},
		{"Upload of short share returns 400", testShortShareRejected},
		{"Download before request returns 400", testDownloadBeforeRequestRejected},
		{"Unsupported method returns 405", testWrongMethodNotAllowed},
		{"Non-numeric sharing id returns 400", testNonNumericIDRejected},
		{"Malformed path returns 404", testMalformedPathNotFound},
		{"XOR client round trip", testXorRoundTrip},
		{"Shamir client round trip with one engine down", testShamirRoundTripWithEngineDown},
		{"Randomness round produces consumable bytes", testRandomnessRound},
	}

	failures := 0
	for _, testCase := range testCases {
		n, err := newNetwork(4)
		if err != nil {
			colour.Printf("^1 - %v (setup failed: %v)^R\n", testCase.testName, err)
			failures++
			continue
		}
		if err := testCase.testFunc(n); err == nil {
			colour.Printf("^2 - %v^R\n", testCase.testName)
		} else {
			colour.Printf("^1 - %v: %v^R\n", testCase.testName, err)
			failures++
		}
		n.close()
	}

	if failures > 0 {
		fmt.Printf("%d of %d checks failed\n", failures, len(testCases))
		os.Exit(1)
	}
}
