package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// UsageEntry is one billed model call. Entries are append-only.
type UsageEntry struct {
	ID           string    `json:"id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Kind         string    `json:"type"`
	Cost         float64   `json:"cost"`
	TokensUsed   int       `json:"tokens_used"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Preview      string    `json:"query_preview"`
}

// DepositEntry is one address awaiting an incoming deposit. ExpectedAmount
// is advisory only: any observed deposit resolves the entry.
type DepositEntry struct {
	UserID         string    `json:"user_id"`
	ExpectedAmount float64   `json:"expected_amount"`
	Timestamp      time.Time `json:"timestamp"`
	Attempts       int       `json:"attempts,omitempty"`
	SeenTxs        []string  `json:"seen_txs,omitempty"`
}

func (e *DepositEntry) seen(txID string) bool {
	for _, id := range e.SeenTxs {
		if id == txID {
			return true
		}
	}
	return false
}

// Stats is the live aggregate view served by the stats endpoint.
type Stats struct {
	TotalUsers           int     `json:"total_users"`
	TotalBalance         float64 `json:"total_balance"`
	PendingDeposits      int     `json:"pending_deposits"`
	TotalQueries         int     `json:"total_queries"`
	PendingAttempts      int     `json:"pending_attempts"`
	OldestPendingAgeSecs float64 `json:"oldest_pending_age_seconds"`
}

type fileState struct {
	Balances     map[string]float64      `json:"balances"`
	UsageLogs    map[string][]UsageEntry `json:"usage_logs"`
	DepositQueue map[string]DepositEntry `json:"deposit_queue"`
}

// Store holds user balances, usage logs and the deposit queue behind a
// single lock, and snapshots them to a JSON file. All accessors are safe
// for concurrent use by the webhook handlers and the deposit poller.
type Store struct {
	mu           sync.RWMutex
	balances     map[string]float64
	usageLogs    map[string][]UsageEntry
	depositQueue map[string]*DepositEntry

	path string
	log  zerolog.Logger
}

func NewStore(path string, log zerolog.Logger) *Store {
	return &Store{
		balances:     make(map[string]float64),
		usageLogs:    make(map[string][]UsageEntry),
		depositQueue: make(map[string]*DepositEntry),
		path:         path,
		log:          log.With().Str("component", "state").Logger(),
	}
}

// Load reads the state file. A missing file starts empty; a malformed file
// is logged and also starts empty. Neither is fatal.
func (s *Store) Load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Info().Str("path", s.path).Msg("no state file found, starting empty")
		} else {
			s.log.Error().Err(err).Str("path", s.path).Msg("failed to read state file, starting empty")
		}
		return
	}

	var fs fileState
	if err := json.Unmarshal(data, &fs); err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("malformed state file, starting empty")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if fs.Balances != nil {
		s.balances = fs.Balances
	}
	if fs.UsageLogs != nil {
		s.usageLogs = fs.UsageLogs
	}
	for addr, entry := range fs.DepositQueue {
		e := entry
		s.depositQueue[addr] = &e
	}
	s.log.Info().Str("path", s.path).Int("users", len(s.balances)).Int("pending_deposits", len(s.depositQueue)).Msg("state loaded")
}

// Save writes the current state to the file, overwriting it in place.
func (s *Store) Save() error {
	s.mu.RLock()
	fs := fileState{
		Balances:     s.balances,
		UsageLogs:    s.usageLogs,
		DepositQueue: make(map[string]DepositEntry, len(s.depositQueue)),
	}
	for addr, entry := range s.depositQueue {
		fs.DepositQueue[addr] = *entry
	}
	data, err := json.MarshalIndent(fs, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

func (s *Store) Balance(userID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[userID]
}

// Credit adds amount to the user's balance and returns the new balance.
func (s *Store) Credit(userID string, amount float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] += amount
	return s.balances[userID]
}

// Debit subtracts amount from the user's balance and returns the new
// balance. The balance is allowed to go below zero: the caller gates on an
// estimate before the model call, and the actual cost may exceed it.
func (s *Store) Debit(userID string, amount float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] -= amount
	return s.balances[userID]
}

func (s *Store) AppendUsage(userID string, entry UsageEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usageLogs[userID] = append(s.usageLogs[userID], entry)
}

// Usage returns a copy of the user's usage log.
func (s *Store) Usage(userID string) []UsageEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.usageLogs[userID]
	out := make([]UsageEntry, len(entries))
	copy(out, entries)
	return out
}

// EnqueueDeposit registers an address to watch. A repeated top-up for the
// same user hits the same address and overwrites the previous entry.
func (s *Store) EnqueueDeposit(address string, entry DepositEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depositQueue[address] = &entry
}

// DepositSnapshot returns a copy of the deposit queue for one poller tick.
func (s *Store) DepositSnapshot() map[string]DepositEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]DepositEntry, len(s.depositQueue))
	for addr, entry := range s.depositQueue {
		out[addr] = *entry
	}
	return out
}

// ApplyDeposit credits the owning user for a transaction seen at address,
// unless that transaction was already credited. It returns the new balance
// and whether a credit happened. The seen-transaction set is persisted with
// the entry so a tick that dies between credit and dequeue cannot double
// credit after a restart.
func (s *Store) ApplyDeposit(address, txID string, amount float64) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.depositQueue[address]
	if !ok || entry.seen(txID) {
		return 0, false
	}
	entry.SeenTxs = append(entry.SeenTxs, txID)
	s.balances[entry.UserID] += amount
	return s.balances[entry.UserID], true
}

func (s *Store) RemoveDeposit(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.depositQueue, address)
}

// MarkDepositAttempt records a failed or empty poll for an address and
// reports the attempt count and entry age so the poller can bound retries.
func (s *Store) MarkDepositAttempt(address string) (attempts int, age time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, found := s.depositQueue[address]
	if !found {
		return 0, 0, false
	}
	entry.Attempts++
	return entry.Attempts, time.Since(entry.Timestamp), true
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	st.TotalUsers = len(s.balances)
	for _, b := range s.balances {
		st.TotalBalance += b
	}
	st.PendingDeposits = len(s.depositQueue)
	for _, entries := range s.usageLogs {
		st.TotalQueries += len(entries)
	}
	now := time.Now()
	for _, entry := range s.depositQueue {
		st.PendingAttempts += entry.Attempts
		if age := now.Sub(entry.Timestamp).Seconds(); age > st.OldestPendingAgeSecs {
			st.OldestPendingAgeSecs = age
		}
	}
	return st
}
