// Package wallet derives per-user deposit addresses from the wallet seed.
// Derivation is a deterministic hash, not real HD wallet derivation: the
// addresses exist to be watched for incoming deposits, not spent from.
package wallet

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

const (
	testnetPrefix = "WYBwT"
	mainnetPrefix = "H"
)

// Addresses hands out one stable pseudo-address per user. Addresses never
// expire and are never rotated.
type Addresses struct {
	seed    string
	network string

	mu    sync.Mutex
	cache map[string]string
}

func NewAddresses(seed, network string) (*Addresses, error) {
	if seed == "" {
		return nil, fmt.Errorf("wallet seed is empty")
	}
	if network != "testnet" && network != "mainnet" {
		return nil, fmt.Errorf("unknown network %q", network)
	}
	return &Addresses{
		seed:    seed,
		network: network,
		cache:   make(map[string]string),
	}, nil
}

// Get returns the user's deposit address, deriving and caching it on first
// use. The same user always gets the same address.
func (a *Addresses) Get(userID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if addr, ok := a.cache[userID]; ok {
		return addr
	}

	sum := sha256.Sum256([]byte(a.seed + ":" + userID))
	digest := hex.EncodeToString(sum[:])

	var addr string
	if a.network == "testnet" {
		addr = testnetPrefix + digest[:30]
	} else {
		addr = mainnetPrefix + digest[:33]
	}

	a.cache[userID] = addr
	return addr
}

// Valid reports whether addr looks like an address for this network.
func (a *Addresses) Valid(addr string) bool {
	if a.network == "testnet" {
		return strings.HasPrefix(addr, testnetPrefix) && len(addr) >= 30
	}
	return strings.HasPrefix(addr, mainnetPrefix) && len(addr) >= 30
}
