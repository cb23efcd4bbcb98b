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

// This binary runs a local engine network: an in-memory ledger hosting the
// secret-sharing and randomness contracts, plus one HTTP engine per node.
// It exists for local development and demos; in production each engine
// would run in its own process against the real chain.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"flag"
	glog "github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sigs.k8s.io/yaml"

	"github.com/partisiablockchain/offchain-secret-sharing/chain"
	"github.com/partisiablockchain/offchain-secret-sharing/chain/ledger"
	"github.com/partisiablockchain/offchain-secret-sharing/constants"
	"github.com/partisiablockchain/offchain-secret-sharing/contract"
	"github.com/partisiablockchain/offchain-secret-sharing/server"
)

var (
	configFile = flag.String("config-file", "engine.yaml", "Path to the engine network YAML config file.")
)

// networkConfig describes the local engine network.
type networkConfig struct {
	// NumEngines is the number of engines to run. Ignored when PrivateKeys
	// is set.
	NumEngines int `json:"numEngines"`
	// BasePort is the port of the first engine; engine i listens on
	// BasePort+i.
	BasePort int `json:"basePort"`
	// ShareDir is the directory holding each engine's sealed share files.
	ShareDir string `json:"shareDir"`
	// PrivateKeys optionally pins the engines' secp256k1 keys, hex encoded.
	// Fresh keys are generated when absent.
	PrivateKeys []string `json:"privateKeys,omitempty"`
}

func loadNetworkConfig(path string) (*networkConfig, error) {
	yamlBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}
	config := &networkConfig{
		NumEngines: 4,
		BasePort:   constants.EngineBasePort,
		ShareDir:   "engine-shares",
	}
	if err := yaml.UnmarshalStrict(yamlBytes, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}
	return config, nil
}

func engineKeys(config *networkConfig) ([]*chain.KeyPair, error) {
	if len(config.PrivateKeys) > 0 {
		keys := make([]*chain.KeyPair, len(config.PrivateKeys))
		for i, hexKey := range config.PrivateKeys {
			k, err := chain.KeyPairFromHex(hexKey)
			if err != nil {
				return nil, fmt.Errorf("bad private key for engine %d: %v", i, err)
			}
			keys[i] = k
		}
		return keys, nil
	}

	keys := make([]*chain.KeyPair, config.NumEngines)
	for i := range keys {
		k, err := chain.GenerateKeyPair()
		if err != nil {
			return nil, fmt.Errorf("generating key for engine %d: %v", i, err)
		}
		keys[i] = k
	}
	return keys, nil
}

// loadOrCreateStoreKey keeps one sealing key per engine directory so sealed
// shares survive restarts.
func loadOrCreateStoreKey(dir string) ([]byte, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "sealing.key")
	key, err := os.ReadFile(path)
	if err == nil {
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	key = server.NewStoreKey()
	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, err
	}
	return key, nil
}

func run() error {
	config, err := loadNetworkConfig(*configFile)
	if err != nil {
		return err
	}
	keys, err := engineKeys(config)
	if err != nil {
		return err
	}

	engines := make([]contract.EngineConfig, len(keys))
	for i, k := range keys {
		engines[i] = contract.EngineConfig{
			Address:  k.Address(),
			Endpoint: fmt.Sprintf("http://localhost:%d", config.BasePort+i),
		}
	}
	l := ledger.New(engines, time.Now)

	var contractAddr chain.Address
	contractAddr[20] = 0x01

	servers := make([]*http.Server, len(keys))
	workers := make([]*server.RandomnessWorker, len(keys))
	for i, k := range keys {
		dir := filepath.Join(config.ShareDir, fmt.Sprintf("engine-%d", i))
		sealingKey, err := loadOrCreateStoreKey(dir)
		if err != nil {
			return fmt.Errorf("initializing share store for engine %d: %v", i, err)
		}
		store, err := server.NewFileStore(dir, sealingKey)
		if err != nil {
			return fmt.Errorf("initializing share store for engine %d: %v", i, err)
		}

		registry := prometheus.NewRegistry()
		metrics := server.NewMetrics(registry)
		engine := server.NewEngine(l, contractAddr, k, i, store, metrics)

		workers[i] = server.NewRandomnessWorker(l, k, i, metrics)
		l.Subscribe(workers[i].OnStateChange)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.Handle("/", engine.Handler())
		servers[i] = &http.Server{
			Addr:    fmt.Sprintf("localhost:%d", config.BasePort+i),
			Handler: mux,
		}
		glog.Infof("Engine %d with address %v listening on %v", i, engines[i].Address, engines[i].Endpoint)
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		srv := srv
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	// Kick the workers once so the first commit round starts immediately.
	for _, worker := range workers {
		worker.OnStateChange()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		glog.Infof("Received %v, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			glog.Errorf("Engine shutdown failed: %v", err)
		}
	}
	return nil
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		glog.Fatalf("Engine network failed: %v", err)
	}
}
