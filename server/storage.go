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

package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/tink/go/aead/subtle"
	"github.com/google/tink/go/subtle/random"
	"github.com/partisiablockchain/offchain-secret-sharing/contract"
)

// ErrAlreadyStored is returned when storing a share under an identifier
// that already holds one.
var ErrAlreadyStored = errors.New("share already stored")

// ErrNotStored is returned when no share exists under the identifier.
var ErrNotStored = errors.New("no share stored")

// ShareStore persists the shares an engine holds. Implementations must be
// safe for concurrent use.
type ShareStore interface {
	// Store saves data under id. Fails with ErrAlreadyStored if a value is
	// already present.
	Store(id contract.SharingID, data []byte) error
	// Load returns the data stored under id, or ErrNotStored.
	Load(id contract.SharingID) ([]byte, error)
	// Delete removes the data stored under id. Deleting an absent id is not
	// an error.
	Delete(id contract.SharingID) error
}

// MemoryStore keeps shares in process memory. Suitable for tests and local
// networks.
type MemoryStore struct {
	mu     sync.Mutex
	shares map[contract.SharingID][]byte
}

// NewMemoryStore creates an empty in-memory share store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{shares: make(map[contract.SharingID][]byte)}
}

// Store implements ShareStore.
func (s *MemoryStore) Store(id contract.SharingID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.shares[id]; exists {
		return ErrAlreadyStored
	}
	s.shares[id] = append([]byte(nil), data...)
	return nil
}

// Load implements ShareStore.
func (s *MemoryStore) Load(id contract.SharingID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, exists := s.shares[id]
	if !exists {
		return nil, ErrNotStored
	}
	return append([]byte(nil), data...), nil
}

// Delete implements ShareStore.
func (s *MemoryStore) Delete(id contract.SharingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.shares, id)
	return nil
}

// FileStore writes each share to its own file under a directory, sealed
// with AES-GCM so shares at rest are unreadable without the engine's key.
type FileStore struct {
	mu  sync.Mutex
	dir string
	aes *subtle.AESGCM
}

// NewFileStore creates a share store rooted at dir, sealing shares with the
// given 32-byte key. The directory is created if absent.
func NewFileStore(dir string, key []byte) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating share directory: %v", err)
	}
	aes, err := subtle.NewAESGCM(key)
	if err != nil {
		return nil, fmt.Errorf("initializing share sealing: %v", err)
	}
	return &FileStore{dir: dir, aes: aes}, nil
}

func (s *FileStore) path(id contract.SharingID) string {
	return filepath.Join(s.dir, fmt.Sprintf("share-%d.bin", id))
}

// Store implements ShareStore.
func (s *FileStore) Store(id contract.SharingID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.path(id)
	if _, err := os.Stat(path); err == nil {
		return ErrAlreadyStored
	}
	sealed, err := s.aes.Encrypt(data, idBytes(id))
	if err != nil {
		return fmt.Errorf("sealing share: %v", err)
	}
	if err := os.WriteFile(path, sealed, 0600); err != nil {
		return fmt.Errorf("writing share file: %v", err)
	}
	return nil
}

// Load implements ShareStore.
func (s *FileStore) Load(id contract.SharingID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sealed, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotStored
	}
	if err != nil {
		return nil, fmt.Errorf("reading share file: %v", err)
	}
	data, err := s.aes.Decrypt(sealed, idBytes(id))
	if err != nil {
		return nil, fmt.Errorf("unsealing share: %v", err)
	}
	return data, nil
}

// Delete implements ShareStore.
func (s *FileStore) Delete(id contract.SharingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting share file: %v", err)
	}
	return nil
}

// idBytes binds the sealed ciphertext to its sharing identifier, so a share
// file cannot be served under a different id.
func idBytes(id contract.SharingID) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(id >> (8 * i))
	}
	return b
}

// NewStoreKey draws a fresh 32-byte sealing key for a FileStore.
func NewStoreKey() []byte {
	return random.GetRandomBytes(32)
}
