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

// Package client implements the data owner's side of off-chain secret
// sharing: splitting a secret into shares, distributing them to the
// engines named by the on-chain contract, and later collecting enough
// shares to reconstruct the secret.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	glog "github.com/golang/glog"
	"github.com/google/tink/go/subtle/random"
	"github.com/googleapis/gax-go/v2"
	"golang.org/x/sync/errgroup"

	"github.com/partisiablockchain/offchain-secret-sharing/chain"
	"github.com/partisiablockchain/offchain-secret-sharing/client/secretshares"
	"github.com/partisiablockchain/offchain-secret-sharing/constants"
	"github.com/partisiablockchain/offchain-secret-sharing/contract"
)

// Chain is the client's view of the blockchain hosting the secret-sharing
// contract.
type Chain interface {
	// Engines lists the engines assigned to the contract, in node order.
	Engines() []contract.EngineConfig
	// RegisterSharing registers a new sharing owned by sender.
	RegisterSharing(sender chain.Address, id contract.SharingID, commitments []chain.Hash) error
	// RequestDownload opens the download window for the sharing.
	RequestDownload(sender chain.Address, id contract.SharingID) error
	// Sharing returns the on-chain record for the sharing.
	Sharing(id contract.SharingID) (contract.Sharing, bool)
}

// SecretSharingClient registers, uploads, and reconstructs secret sharings
// on behalf of one key pair.
type SecretSharingClient struct {
	chain        Chain
	contractAddr chain.Address
	keys         *chain.KeyPair
	factory      secretshares.Factory
	httpClient   *http.Client
}

// NewSecretSharingClient creates a client for the contract at contractAddr.
// The factory decides the sharing scheme; use secretshares.NewXorFactory or
// secretshares.NewShamirFactory.
func NewSecretSharingClient(ch Chain, contractAddr chain.Address, keys *chain.KeyPair, factory secretshares.Factory) *SecretSharingClient {
	return &SecretSharingClient{
		chain:        ch,
		contractAddr: contractAddr,
		keys:         keys,
		factory:      factory,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// RegisterAndUploadSharing splits data into one share per engine, registers
// the share commitments on chain, and uploads each share to its engine. The
// data is prefixed with a random nonce before splitting, so identical
// secrets produce unrelated shares and commitments.
func (c *SecretSharingClient) RegisterAndUploadSharing(ctx context.Context, id contract.SharingID, data []byte) error {
	engines := c.chain.Engines()

	plainText := append(random.GetRandomBytes(constants.NonceLength), data...)
	shares, err := c.factory.FromPlainText(len(engines), plainText)
	if err != nil {
		return fmt.Errorf("splitting secret: %v", err)
	}

	if err := c.chain.RegisterSharing(c.keys.Address(), id, shares.Commitments()); err != nil {
		return fmt.Errorf("registering sharing %d: %v", id, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, engine := range engines {
		i, engine := i, engine
		g.Go(func() error {
			return c.uploadShare(ctx, engine, id, shares.ShareBytes(i))
		})
	}
	return g.Wait()
}

// uploadShare sends one share to its engine, retrying transient failures
// with backoff until the engine confirms storage.
func (c *SecretSharingClient) uploadShare(ctx context.Context, engine contract.EngineConfig, id contract.SharingID, share []byte) error {
	backoff := gax.Backoff{
		Initial:    100 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 2,
	}

	var lastErr error
	for attempt := 0; attempt < constants.MaxUploadAttempts; attempt++ {
		if attempt > 0 {
			if err := gax.Sleep(ctx, backoff.Pause()); err != nil {
				return err
			}
		}

		status, err := c.putShare(ctx, engine, id, share)
		switch {
		case err != nil:
			lastErr = err
		case status == http.StatusCreated:
			return nil
		case status == http.StatusConflict:
			// The engine already holds this share from an earlier attempt.
			return nil
		case status >= 400 && status < 500:
			// The engine rejected the share outright; retrying the same
			// request cannot succeed.
			return fmt.Errorf("engine %v rejected share for sharing %d with status %d", engine.Endpoint, id, status)
		default:
			lastErr = fmt.Errorf("engine returned status %d", status)
		}
		glog.Warningf("Upload of share for sharing %d to %v failed (attempt %d): %v", id, engine.Endpoint, attempt+1, lastErr)
	}
	return fmt.Errorf("uploading share for sharing %d to engine %v: %v", id, engine.Endpoint, lastErr)
}

func (c *SecretSharingClient) putShare(ctx context.Context, engine contract.EngineConfig, id contract.SharingID, share []byte) (int, error) {
	uri := fmt.Sprintf("/shares/%d", id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, engine.Endpoint+uri, bytes.NewReader(share))
	if err != nil {
		return 0, err
	}
	c.authorize(req, engine, uri, share)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// DownloadAndReconstruct requests download access on chain, fetches the
// shares from all engines, and reconstructs the secret. Shares that cannot
// be fetched or fail their commitment check are treated as missing; the
// reconstruction succeeds as long as the scheme's threshold holds.
func (c *SecretSharingClient) DownloadAndReconstruct(ctx context.Context, id contract.SharingID) ([]byte, error) {
	if err := c.chain.RequestDownload(c.keys.Address(), id); err != nil {
		return nil, fmt.Errorf("requesting download of sharing %d: %v", id, err)
	}
	sharing, exists := c.chain.Sharing(id)
	if !exists {
		return nil, contract.ErrUnknownSharing
	}

	engines := c.chain.Engines()
	received := make([][]byte, len(engines))
	g, ctx := errgroup.WithContext(ctx)
	for i, engine := range engines {
		i, engine := i, engine
		g.Go(func() error {
			share, err := c.getShare(ctx, engine, id)
			if err != nil {
				// A missing share degrades the reconstruction but does not
				// abort it.
				glog.Warningf("Could not fetch share for sharing %d from %v: %v", id, engine.Endpoint, err)
				return nil
			}
			received[i] = share
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	filtered, err := secretshares.FilterSharesFromCommitments(sharing.ShareCommitments, received)
	if err != nil {
		return nil, err
	}
	shares, err := c.factory.FromSharesBytes(filtered)
	if err != nil {
		return nil, err
	}
	plainText, err := shares.ReconstructPlainText()
	if err != nil {
		return nil, err
	}
	if len(plainText) < constants.NonceLength {
		return nil, fmt.Errorf("reconstructed plaintext shorter than its nonce")
	}
	return plainText[constants.NonceLength:], nil
}

func (c *SecretSharingClient) getShare(ctx context.Context, engine contract.EngineConfig, id contract.SharingID) ([]byte, error) {
	uri := fmt.Sprintf("/shares/%d", id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, engine.Endpoint+uri, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req, engine, uri, nil)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("engine returned status %d: %s", resp.StatusCode, body)
	}
	return io.ReadAll(resp.Body)
}

// authorize signs the request for the given engine. The signature binds the
// engine address, contract address, method, URI, timestamp, and body.
func (c *SecretSharingClient) authorize(req *http.Request, engine contract.EngineConfig, uri string, body []byte) {
	millis := time.Now().UnixMilli()
	message := chain.SignedRequestMessage(engine.Address, c.contractAddr, req.Method, uri, millis, body)
	sig := c.keys.SignMessage(message)
	req.Header.Set("Authorization", chain.AuthorizationHeader(sig, millis))
}
