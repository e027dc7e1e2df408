// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"os"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/ledgerd/shellcore/address"
	"github.com/ledgerd/shellcore/storage"
)

// Genesis is the YAML-documented bootstrap state this core seeds
// storage with before the first BeginBlock. It recovers the dropped
// feature visible in the original shell's hardcoded genesis balances
// (two accounts, each with an eth/xtz balance) as data instead of code.
type Genesis struct {
	ChainID  string           `yaml:"chain_id"`
	Accounts []GenesisAccount `yaml:"accounts"`
}

// GenesisAccount seeds one address: its validity predicate bytecode
// and an arbitrary set of named token balances. Balances are decimal
// strings rather than a machine int because a genesis amount can
// exceed 64 bits; they're parsed into uint256.Int and stored as a
// fixed 32-byte big-endian word, the same width real account balances
// need once this core moves past the toy TxRunner fixtures its tests
// use.
type GenesisAccount struct {
	Address  string            `yaml:"address"`
	Kind     string            `yaml:"kind"` // "established", "implicit", or "internal"
	VPBase64 string            `yaml:"vp"`
	Balances map[string]string `yaml:"balances"`
}

// LoadGenesis parses a Genesis document from path.
func LoadGenesis(path string) (Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, fmt.Errorf("config: reading genesis %q: %w", path, err)
	}
	var g Genesis
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return Genesis{}, fmt.Errorf("config: parsing genesis %q: %w", path, err)
	}
	return g, nil
}

func parseAddress(kind, id string) (address.Address, error) {
	switch kind {
	case "established":
		return address.NewEstablished(id), nil
	case "implicit":
		return address.NewImplicit(id), nil
	case "internal":
		return address.NewInternal(id), nil
	default:
		return address.Address{}, fmt.Errorf("config: unknown address kind %q", kind)
	}
}

// Apply writes every account's VP and balances directly to store. It
// must run before the first BeginBlock: it bypasses the write-log
// entirely, the same way the original shell wrote genesis balances
// straight into its KV store ahead of the block loop.
func Apply(g Genesis, store storage.Storage) error {
	if g.ChainID != "" {
		if err := store.SetChainID(g.ChainID); err != nil {
			return err
		}
	}
	for _, acc := range g.Accounts {
		addr, err := parseAddress(acc.Kind, acc.Address)
		if err != nil {
			return err
		}
		if acc.VPBase64 != "" {
			if err := store.Write(address.ValidityPredicateKey(addr), []byte(acc.VPBase64)); err != nil {
				return fmt.Errorf("config: writing vp for %s: %w", acc.Address, err)
			}
		}
		for token, amount := range acc.Balances {
			key := address.NewKey().Push("balance").Push(token).PushAddress(addr)
			value, err := uint256.FromDecimal(amount)
			if err != nil {
				return fmt.Errorf("config: parsing balance %s/%s=%q: %w", acc.Address, token, amount, err)
			}
			buf := value.Bytes32()
			if err := store.Write(key, buf[:]); err != nil {
				return fmt.Errorf("config: writing balance %s/%s: %w", acc.Address, token, err)
			}
		}
	}
	return nil
}
