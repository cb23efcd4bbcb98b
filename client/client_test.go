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

package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/partisiablockchain/offchain-secret-sharing/chain"
	"github.com/partisiablockchain/offchain-secret-sharing/chain/ledger"
	"github.com/partisiablockchain/offchain-secret-sharing/client/secretshares"
	"github.com/partisiablockchain/offchain-secret-sharing/contract"
	"github.com/partisiablockchain/offchain-secret-sharing/server"
)

// testChain serves ledger state to the client with the endpoints of the
// in-process test engines patched in.
type testChain struct {
	*ledger.Ledger
	endpoints []string
}

func (c *testChain) Engines() []contract.EngineConfig {
	engines := c.Ledger.Engines()
	for i := range engines {
		engines[i].Endpoint = c.endpoints[i]
	}
	return engines
}

// testNetwork runs a full local deployment: a ledger, one HTTP engine per
// node, and a client owning a key pair.
type testNetwork struct {
	chain   *testChain
	client  *SecretSharingClient
	stores  []server.ShareStore
	servers []*httptest.Server
}

func newTestNetwork(t *testing.T, numEngines int, factory secretshares.Factory) *testNetwork {
	t.Helper()

	ownerKeys, err := chain.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generating owner keys: %v", err)
	}
	engineKeys := make([]*chain.KeyPair, numEngines)
	engines := make([]contract.EngineConfig, numEngines)
	for i := range engines {
		keys, err := chain.GenerateKeyPair()
		if err != nil {
			t.Fatalf("generating engine keys: %v", err)
		}
		engineKeys[i] = keys
		engines[i] = contract.EngineConfig{Address: keys.Address()}
	}

	l := ledger.New(engines, time.Now)
	var contractAddr chain.Address
	contractAddr[20] = 0xCC

	n := &testNetwork{
		chain: &testChain{Ledger: l, endpoints: make([]string, numEngines)},
	}
	for i := 0; i < numEngines; i++ {
		store := server.NewMemoryStore()
		engine := server.NewEngine(l, contractAddr, engineKeys[i], i, store, nil)
		srv := httptest.NewServer(engine.Handler())
		t.Cleanup(srv.Close)
		n.stores = append(n.stores, store)
		n.servers = append(n.servers, srv)
		n.chain.endpoints[i] = srv.URL
	}
	n.client = NewSecretSharingClient(n.chain, contractAddr, ownerKeys, factory)
	return n
}

func TestXorShareAndReconstruct(t *testing.T) {
	n := newTestNetwork(t, 4, secretshares.NewXorFactory())
	secret := []byte("the launch codes")

	if err := n.client.RegisterAndUploadSharing(context.Background(), 1, secret); err != nil {
		t.Fatalf("RegisterAndUploadSharing failed: %v", err)
	}

	sharing, _ := n.chain.Sharing(1)
	if !sharing.FullyUploaded() {
		t.Fatal("sharing not fully uploaded after client upload")
	}

	got, err := n.client.DownloadAndReconstruct(context.Background(), 1)
	if err != nil {
		t.Fatalf("DownloadAndReconstruct failed: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Errorf("reconstructed %q, want %q", got, secret)
	}
}

func TestShamirShareAndReconstruct(t *testing.T) {
	n := newTestNetwork(t, 4, secretshares.NewShamirFactory(secretshares.DefaultShamirConfig))
	secret := []byte("the launch codes")

	if err := n.client.RegisterAndUploadSharing(context.Background(), 1, secret); err != nil {
		t.Fatalf("RegisterAndUploadSharing failed: %v", err)
	}
	got, err := n.client.DownloadAndReconstruct(context.Background(), 1)
	if err != nil {
		t.Fatalf("DownloadAndReconstruct failed: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Errorf("reconstructed %q, want %q", got, secret)
	}
}

func TestShamirReconstructWithEngineDown(t *testing.T) {
	n := newTestNetwork(t, 4, secretshares.NewShamirFactory(secretshares.DefaultShamirConfig))
	secret := []byte("survives one missing engine")

	if err := n.client.RegisterAndUploadSharing(context.Background(), 1, secret); err != nil {
		t.Fatalf("RegisterAndUploadSharing failed: %v", err)
	}
	n.servers[3].Close()

	got, err := n.client.DownloadAndReconstruct(context.Background(), 1)
	if err != nil {
		t.Fatalf("DownloadAndReconstruct failed: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Errorf("reconstructed %q, want %q", got, secret)
	}
}

func TestShamirReconstructWithCorruptedShare(t *testing.T) {
	n := newTestNetwork(t, 4, secretshares.NewShamirFactory(secretshares.DefaultShamirConfig))
	secret := []byte("survives one corrupted share")

	if err := n.client.RegisterAndUploadSharing(context.Background(), 1, secret); err != nil {
		t.Fatalf("RegisterAndUploadSharing failed: %v", err)
	}

	// Engine 2 serves garbage; the commitment check degrades it to missing.
	share, err := n.stores[2].Load(1)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	share[0] ^= 0xFF
	if err := n.stores[2].Delete(1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := n.stores[2].Store(1, share); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, err := n.client.DownloadAndReconstruct(context.Background(), 1)
	if err != nil {
		t.Fatalf("DownloadAndReconstruct failed: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Errorf("reconstructed %q, want %q", got, secret)
	}
}

func TestXorReconstructFailsWithEngineDown(t *testing.T) {
	n := newTestNetwork(t, 4, secretshares.NewXorFactory())

	if err := n.client.RegisterAndUploadSharing(context.Background(), 1, []byte("fragile")); err != nil {
		t.Fatalf("RegisterAndUploadSharing failed: %v", err)
	}
	n.servers[0].Close()

	if _, err := n.client.DownloadAndReconstruct(context.Background(), 1); err == nil {
		t.Fatal("reconstruction succeeded despite a missing required share")
	}
}

func TestUploadFailureNamesEngine(t *testing.T) {
	n := newTestNetwork(t, 4, secretshares.NewXorFactory())

	// Engine 1 rejects everything.
	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	t.Cleanup(rejecting.Close)
	n.chain.endpoints[1] = rejecting.URL

	err := n.client.RegisterAndUploadSharing(context.Background(), 1, []byte("secret"))
	if err == nil {
		t.Fatal("upload succeeded despite rejecting engine")
	}
	if !strings.Contains(err.Error(), rejecting.URL) {
		t.Errorf("error %q does not name the failing engine", err)
	}
}

func TestDownloadBeforeFullUploadFails(t *testing.T) {
	n := newTestNetwork(t, 4, secretshares.NewXorFactory())

	// Register on chain without uploading anything.
	factory := secretshares.NewXorFactory()
	shares, err := factory.FromPlainText(4, []byte("never uploaded"))
	if err != nil {
		t.Fatalf("FromPlainText failed: %v", err)
	}
	owner := n.client.keys.Address()
	if err := n.chain.RegisterSharing(owner, 1, shares.Commitments()); err != nil {
		t.Fatalf("RegisterSharing failed: %v", err)
	}

	_, err = n.client.DownloadAndReconstruct(context.Background(), 1)
	if err == nil {
		t.Fatal("download allowed before shares were uploaded")
	}
	if !strings.Contains(err.Error(), "uploaded to all nodes") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSequentialSharings(t *testing.T) {
	n := newTestNetwork(t, 3, secretshares.NewXorFactory())

	for i := 1; i <= 3; i++ {
		secret := []byte(fmt.Sprintf("secret number %d", i))
		id := contract.SharingID(i)
		if err := n.client.RegisterAndUploadSharing(context.Background(), id, secret); err != nil {
			t.Fatalf("upload of sharing %d failed: %v", id, err)
		}
		got, err := n.client.DownloadAndReconstruct(context.Background(), id)
		if err != nil {
			t.Fatalf("reconstruction of sharing %d failed: %v", id, err)
		}
		if !bytes.Equal(got, secret) {
			t.Errorf("sharing %d reconstructed %q, want %q", id, got, secret)
		}
	}
}
