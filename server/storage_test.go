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
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	data := []byte("share bytes")

	if err := store.Store(1, data); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	got, err := store.Load(1)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Load = %q, want %q", got, data)
	}

	if err := store.Store(1, data); !errors.Is(err, ErrAlreadyStored) {
		t.Errorf("second Store got %v, want ErrAlreadyStored", err)
	}
	if err := store.Delete(1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(1); !errors.Is(err, ErrNotStored) {
		t.Errorf("Load after Delete got %v, want ErrNotStored", err)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, NewStoreKey())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	data := []byte("share bytes")

	if err := store.Store(1, data); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	got, err := store.Load(1)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Load = %q, want %q", got, data)
	}

	if err := store.Store(1, data); !errors.Is(err, ErrAlreadyStored) {
		t.Errorf("second Store got %v, want ErrAlreadyStored", err)
	}
	if _, err := store.Load(2); !errors.Is(err, ErrNotStored) {
		t.Errorf("Load of absent id got %v, want ErrNotStored", err)
	}
	if err := store.Delete(1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(1); !errors.Is(err, ErrNotStored) {
		t.Errorf("Load after Delete got %v, want ErrNotStored", err)
	}
}

func TestFileStoreSealsSharesAtRest(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, NewStoreKey())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	data := []byte("plaintext share that must not appear on disk")
	if err := store.Store(1, data); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d files, want 1", len(entries))
	}
	raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if bytes.Contains(raw, data) {
		t.Error("share stored in plaintext on disk")
	}
}

func TestFileStoreRejectsWrongKey(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, NewStoreKey())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := store.Store(1, []byte("share")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	reopened, err := NewFileStore(dir, NewStoreKey())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if _, err := reopened.Load(1); err == nil {
		t.Error("share unsealed with the wrong key")
	}
}
