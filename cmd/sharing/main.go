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

// This binary is the command line tool for splitting secrets into shares
// and reconstructing them again, without talking to a blockchain. It is the
// offline counterpart of the client library, useful for backups and for
// inspecting what the engines would store.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"flag"
	glog "github.com/golang/glog"
	"github.com/google/subcommands"
	"github.com/google/tink/go/subtle/random"
	"sigs.k8s.io/yaml"

	"github.com/partisiablockchain/offchain-secret-sharing/chain"
	"github.com/partisiablockchain/offchain-secret-sharing/client/secretshares"
	"github.com/partisiablockchain/offchain-secret-sharing/constants"
)

const (
	// The default name for the sharing configuration file.
	defaultConfigName string = "sharing.yaml"

	// The current version, displayed via the `version` subcommand.
	sharingVersion string = "0.1.0"

	commitmentsFileName = "commitments.txt"
)

// schemeConfig selects and parameterizes the secret-sharing scheme.
type schemeConfig struct {
	// Scheme is "xor" or "shamir".
	Scheme string `json:"scheme"`
	// NumNodes is the number of shares to produce.
	NumNodes int `json:"numNodes"`
	// Shamir holds the threshold parameters; required when Scheme is
	// "shamir".
	Shamir *secretshares.ShamirConfig `json:"shamir,omitempty"`
}

func defaultConfigPath() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		glog.Errorf("Failed to get config directory location: %v", err.Error())
	}
	return filepath.Join(cfgDir, defaultConfigName)
}

func loadConfig(path string) (*schemeConfig, error) {
	yamlBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}
	config := &schemeConfig{}
	if err := yaml.UnmarshalStrict(yamlBytes, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}
	return config, nil
}

func (c *schemeConfig) factory() (secretshares.Factory, error) {
	switch strings.ToLower(c.Scheme) {
	case "xor":
		return secretshares.NewXorFactory(), nil
	case "shamir":
		if c.Shamir == nil {
			return nil, fmt.Errorf("shamir scheme selected but no shamir stanza found in config")
		}
		return secretshares.NewShamirFactory(*c.Shamir), nil
	default:
		return nil, fmt.Errorf("unknown scheme %q (want \"xor\" or \"shamir\")", c.Scheme)
	}
}

func shareFileName(dir string, nodeIndex int) string {
	return filepath.Join(dir, fmt.Sprintf("share-%d.bin", nodeIndex))
}

// splitCmd handles CLI options for the split command.
type splitCmd struct {
	configFile string
}

func (*splitCmd) Name() string     { return "split" }
func (*splitCmd) Synopsis() string { return "splits a secret file into shares" }
func (*splitCmd) Usage() string {
	return fmt.Sprintf(`Usage: sharing split [--config-file=<config_file>] <secret_file> <output_dir>

Splits the secret into one share file per node, plus a commitments file used
to detect corrupted shares during reconstruction. The secret is prefixed
with a random nonce before splitting.

Examples:
  Split a file using %s for configuration:
    $ sharing split secret.txt shares/

Flags:
`, defaultConfigPath())
}

func (s *splitCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.configFile, "config-file", defaultConfigPath(), "Path to a sharing YAML config file. Optional.")
}

func (s *splitCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		glog.Errorf("Not enough arguments (expected secret file and output directory)")
		return subcommands.ExitFailure
	}

	config, err := loadConfig(s.configFile)
	if err != nil {
		glog.Errorf("%v", err)
		return subcommands.ExitFailure
	}
	factory, err := config.factory()
	if err != nil {
		glog.Errorf("%v", err)
		return subcommands.ExitFailure
	}

	secret, err := os.ReadFile(f.Arg(0))
	if err != nil {
		glog.Errorf("Failed to read secret file: %v", err.Error())
		return subcommands.ExitFailure
	}
	plainText := append(random.GetRandomBytes(constants.NonceLength), secret...)
	shares, err := factory.FromPlainText(config.NumNodes, plainText)
	if err != nil {
		glog.Errorf("Failed to split secret: %v", err.Error())
		return subcommands.ExitFailure
	}

	outputDir := f.Arg(1)
	if err := os.MkdirAll(outputDir, 0700); err != nil {
		glog.Errorf("Failed to create output directory: %v", err.Error())
		return subcommands.ExitFailure
	}
	var commitmentLines []string
	for i := 0; i < shares.NumShares(); i++ {
		if err := os.WriteFile(shareFileName(outputDir, i), shares.ShareBytes(i), 0600); err != nil {
			glog.Errorf("Failed to write share %d: %v", i, err.Error())
			return subcommands.ExitFailure
		}
	}
	for _, commitment := range shares.Commitments() {
		commitmentLines = append(commitmentLines, commitment.String())
	}
	commitmentsPath := filepath.Join(outputDir, commitmentsFileName)
	if err := os.WriteFile(commitmentsPath, []byte(strings.Join(commitmentLines, "\n")+"\n"), 0600); err != nil {
		glog.Errorf("Failed to write commitments: %v", err.Error())
		return subcommands.ExitFailure
	}

	fmt.Printf("Wrote %d shares and %s to %s\n", shares.NumShares(), commitmentsFileName, outputDir)
	return subcommands.ExitSuccess
}

// combineCmd handles CLI options for the combine command.
type combineCmd struct {
	configFile string
}

func (*combineCmd) Name() string     { return "combine" }
func (*combineCmd) Synopsis() string { return "reconstructs a secret from share files" }
func (*combineCmd) Usage() string {
	return fmt.Sprintf(`Usage: sharing combine [--config-file=<config_file>] <shares_dir> <output_file>

Reads the share files and commitments written by `+"`sharing split`"+` and
reconstructs the secret. Missing or corrupted share files are tolerated as
long as the scheme's threshold still holds.

Examples:
  Reconstruct a secret using %s for configuration:
    $ sharing combine shares/ recovered.txt

Flags:
`, defaultConfigPath())
}

func (c *combineCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configFile, "config-file", defaultConfigPath(), "Path to a sharing YAML config file. Optional.")
}

func (c *combineCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		glog.Errorf("Not enough arguments (expected shares directory and output file)")
		return subcommands.ExitFailure
	}

	config, err := loadConfig(c.configFile)
	if err != nil {
		glog.Errorf("%v", err)
		return subcommands.ExitFailure
	}
	factory, err := config.factory()
	if err != nil {
		glog.Errorf("%v", err)
		return subcommands.ExitFailure
	}

	sharesDir := f.Arg(0)
	commitmentsBytes, err := os.ReadFile(filepath.Join(sharesDir, commitmentsFileName))
	if err != nil {
		glog.Errorf("Failed to read commitments: %v", err.Error())
		return subcommands.ExitFailure
	}
	var commitments []chain.Hash
	for _, line := range strings.Fields(string(commitmentsBytes)) {
		commitment, err := chain.ParseHash(line)
		if err != nil {
			glog.Errorf("Malformed commitment %q: %v", line, err.Error())
			return subcommands.ExitFailure
		}
		commitments = append(commitments, commitment)
	}

	received := make([][]byte, len(commitments))
	for i := range received {
		share, err := os.ReadFile(shareFileName(sharesDir, i))
		if err != nil {
			glog.Warningf("Share %d unavailable: %v", i, err.Error())
			continue
		}
		received[i] = share
	}

	filtered, err := secretshares.FilterSharesFromCommitments(commitments, received)
	if err != nil {
		glog.Errorf("Failed to filter shares: %v", err.Error())
		return subcommands.ExitFailure
	}
	shares, err := factory.FromSharesBytes(filtered)
	if err != nil {
		glog.Errorf("Failed to assemble shares: %v", err.Error())
		return subcommands.ExitFailure
	}
	plainText, err := shares.ReconstructPlainText()
	if err != nil {
		glog.Errorf("Failed to reconstruct secret: %v", err.Error())
		return subcommands.ExitFailure
	}
	if len(plainText) < constants.NonceLength {
		glog.Errorf("Reconstructed plaintext shorter than its nonce")
		return subcommands.ExitFailure
	}

	if err := os.WriteFile(f.Arg(1), plainText[constants.NonceLength:], 0600); err != nil {
		glog.Errorf("Failed to write output file: %v", err.Error())
		return subcommands.ExitFailure
	}
	fmt.Println("Wrote reconstructed secret to", f.Arg(1))
	return subcommands.ExitSuccess
}

// versionCmd handles CLI options for the version command.
type versionCmd struct{}

func (*versionCmd) Name() string           { return "version" }
func (*versionCmd) Synopsis() string       { return "prints the current version" }
func (*versionCmd) Usage() string          { return "Usage: sharing version" }
func (*versionCmd) SetFlags(*flag.FlagSet) {}
func (*versionCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	fmt.Printf("Sharing Version %s\n", sharingVersion)
	return subcommands.ExitSuccess
}

func main() {
	flag.Parse()

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(&splitCmd{}, "")
	subcommands.Register(&combineCmd{}, "")
	subcommands.Register(&versionCmd{}, "")

	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}
