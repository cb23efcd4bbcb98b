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

// Package server implements the engine: the HTTP node that stores one share
// of each registered secret sharing and contributes to the randomness
// contract. Every share request must carry a signature proving it comes
// from the sharing's owner.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	glog "github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/partisiablockchain/offchain-secret-sharing/chain"
	"github.com/partisiablockchain/offchain-secret-sharing/constants"
	"github.com/partisiablockchain/offchain-secret-sharing/contract"
)

// Chain is the engine's view of the blockchain hosting the secret-sharing
// contract.
type Chain interface {
	// Sharing returns the on-chain record for the given sharing id.
	Sharing(id contract.SharingID) (contract.Sharing, bool)
	// RegisterShared reports that the engine has stored its share.
	RegisterShared(sender chain.Address, id contract.SharingID) error
	// Now returns the current block time, used to enforce download deadlines.
	Now() time.Time
}

// Engine serves one node's share of every sharing registered with the
// contract.
type Engine struct {
	chain        Chain
	contractAddr chain.Address
	keys         *chain.KeyPair
	index        int
	store        ShareStore
	metrics      *Metrics
}

// NewEngine creates an engine serving the contract at contractAddr with the
// given identity. The index is the engine's slot in the contract's engine
// list; share commitments are checked against that slot. Metrics may be nil.
func NewEngine(ch Chain, contractAddr chain.Address, keys *chain.KeyPair, index int, store ShareStore, metrics *Metrics) *Engine {
	return &Engine{
		chain:        ch,
		contractAddr: contractAddr,
		keys:         keys,
		index:        index,
		store:        store,
		metrics:      metrics,
	}
}

// Address returns the engine's blockchain address.
func (e *Engine) Address() chain.Address {
	return e.keys.Address()
}

// Handler returns the engine's HTTP surface.
func (e *Engine) Handler() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.Put("/shares/{sharingId}", e.handlePutShare)
	r.Get("/shares/{sharingId}", e.handleGetShare)
	return r
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		glog.Errorf("Failed to write error response: %v", err)
	}
}

func parseSharingID(req *http.Request) (contract.SharingID, error) {
	raw := chi.URLParam(req, "sharingId")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sharing id %q", raw)
	}
	return contract.SharingID(id), nil
}

// authorizeOwner checks that the request was signed by the sharing's owner.
// The signed message binds the engine and contract addresses, method, URI,
// timestamp, and body, so a signature produced for one engine or sharing
// cannot be replayed against another.
func (e *Engine) authorizeOwner(req *http.Request, body []byte, id contract.SharingID, owner chain.Address) error {
	sig, millis, err := chain.ParseAuthorizationHeader(req.Header.Get("Authorization"))
	if err != nil {
		return err
	}
	uri := fmt.Sprintf("/shares/%d", id)
	message := chain.SignedRequestMessage(e.Address(), e.contractAddr, req.Method, uri, millis, body)
	recovered, err := sig.RecoverAddress(message)
	if err != nil {
		return fmt.Errorf("recovering signer: %v", err)
	}
	if recovered != owner {
		return fmt.Errorf("caller is not the owner of the sharing")
	}
	return nil
}

func (e *Engine) handlePutShare(w http.ResponseWriter, req *http.Request) {
	requestID := uuid.NewString()
	id, err := parseSharingID(req)
	if err != nil {
		e.metrics.rejected("bad_id")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		e.metrics.rejected("body_read")
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	sharing, exists := e.chain.Sharing(id)
	if !exists {
		e.metrics.rejected("unknown_sharing")
		writeError(w, http.StatusNotFound, "unknown sharing")
		return
	}
	if err := e.authorizeOwner(req, body, id, sharing.Owner); err != nil {
		glog.Warningf("[%v] Rejecting upload for sharing %d: %v", requestID, id, err)
		e.metrics.rejected("unauthorized")
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if len(body) < constants.NonceLength {
		e.metrics.rejected("short_share")
		writeError(w, http.StatusBadRequest, "share is too short")
		return
	}
	if chain.HashOf(body) != sharing.ShareCommitments[e.index] {
		glog.Warningf("[%v] Share for sharing %d does not match its commitment", requestID, id)
		e.metrics.rejected("commitment_mismatch")
		writeError(w, http.StatusUnauthorized, "share doesn't match commitment")
		return
	}

	if err := e.store.Store(id, body); err != nil {
		if errors.Is(err, ErrAlreadyStored) {
			e.metrics.rejected("already_stored")
			writeError(w, http.StatusConflict, "share already stored")
			return
		}
		glog.Errorf("[%v] Failed to store share for sharing %d: %v", requestID, id, err)
		writeError(w, http.StatusInternalServerError, "failed to store share")
		return
	}

	if err := e.chain.RegisterShared(e.Address(), id); err != nil {
		// The share is stored; the confirmation can be retried by operators,
		// so the upload itself still succeeds.
		glog.Errorf("[%v] Failed to confirm upload of sharing %d on chain: %v", requestID, id, err)
	}

	glog.Infof("[%v] Stored share for sharing %d", requestID, id)
	e.metrics.shareStored()
	w.WriteHeader(http.StatusCreated)
}

func (e *Engine) handleGetShare(w http.ResponseWriter, req *http.Request) {
	requestID := uuid.NewString()
	id, err := parseSharingID(req)
	if err != nil {
		e.metrics.rejected("bad_id")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sharing, exists := e.chain.Sharing(id)
	if !exists {
		e.metrics.rejected("unknown_sharing")
		writeError(w, http.StatusNotFound, "unknown sharing")
		return
	}
	if err := e.authorizeOwner(req, nil, id, sharing.Owner); err != nil {
		glog.Warningf("[%v] Rejecting download for sharing %d: %v", requestID, id, err)
		e.metrics.rejected("unauthorized")
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if !sharing.DownloadAllowed(e.chain.Now()) {
		e.metrics.rejected("download_not_allowed")
		writeError(w, http.StatusBadRequest, "download not allowed")
		return
	}

	share, err := e.store.Load(id)
	if err != nil {
		if errors.Is(err, ErrNotStored) {
			e.metrics.rejected("not_stored")
			writeError(w, http.StatusNotFound, "no share stored")
			return
		}
		glog.Errorf("[%v] Failed to load share for sharing %d: %v", requestID, id, err)
		writeError(w, http.StatusInternalServerError, "failed to load share")
		return
	}

	glog.Infof("[%v] Serving share for sharing %d", requestID, id)
	e.metrics.shareServed()
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := w.Write(share); err != nil {
		glog.Errorf("[%v] Failed to write share response: %v", requestID, err)
	}
}
