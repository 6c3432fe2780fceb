package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "state.json"), zerolog.Nop())
}

func TestLoad_MissingFile(t *testing.T) {
	s := newTestStore(t)
	s.Load()

	if got := s.Balance("user"); got != 0 {
		t.Errorf("Expected zero balance on fresh store, got %f", got)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	s := NewStore(path, zerolog.Nop())
	s.Load()

	if got := s.Stats().TotalUsers; got != 0 {
		t.Errorf("Expected empty state after malformed file, got %d users", got)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewStore(path, zerolog.Nop())

	s.Credit("+15551234", 2.5)
	s.AppendUsage("+15551234", UsageEntry{
		ID:           "entry-1",
		Timestamp:    time.Now().Truncate(time.Second),
		Kind:         "ai_query",
		Cost:         0.02,
		TokensUsed:   200,
		InputTokens:  120,
		OutputTokens: 80,
		Preview:      "hello world",
	})
	s.EnqueueDeposit("WYBwTabc", DepositEntry{
		UserID:         "+15551234",
		ExpectedAmount: 1.0,
		Timestamp:      time.Now().Truncate(time.Second),
		SeenTxs:        []string{"tx0"},
	})

	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := NewStore(path, zerolog.Nop())
	loaded.Load()

	if got := loaded.Balance("+15551234"); got != 2.5 {
		t.Errorf("Expected balance 2.5 after reload, got %f", got)
	}
	usage := loaded.Usage("+15551234")
	if len(usage) != 1 {
		t.Fatalf("Expected 1 usage entry after reload, got %d", len(usage))
	}
	if usage[0].Cost != 0.02 || usage[0].Preview != "hello world" {
		t.Errorf("Usage entry not preserved: %+v", usage[0])
	}
	queue := loaded.DepositSnapshot()
	entry, ok := queue["WYBwTabc"]
	if !ok {
		t.Fatal("Expected deposit entry after reload")
	}
	if entry.UserID != "+15551234" || entry.ExpectedAmount != 1.0 {
		t.Errorf("Deposit entry not preserved: %+v", entry)
	}
	if len(entry.SeenTxs) != 1 || entry.SeenTxs[0] != "tx0" {
		t.Errorf("Seen transactions not preserved: %+v", entry.SeenTxs)
	}
}

func TestDebit_AllowsNegative(t *testing.T) {
	s := newTestStore(t)
	s.Credit("user", 0.01)

	if got := s.Debit("user", 0.05); got != -0.04 {
		t.Errorf("Expected balance -0.04, got %f", got)
	}
}

func TestApplyDeposit_CreditsOnce(t *testing.T) {
	s := newTestStore(t)
	s.EnqueueDeposit("addr", DepositEntry{UserID: "user", Timestamp: time.Now()})

	balance, ok := s.ApplyDeposit("addr", "tx1", 1.0)
	if !ok || balance != 1.0 {
		t.Fatalf("Expected first credit of 1.0, got %f ok=%v", balance, ok)
	}

	if _, ok := s.ApplyDeposit("addr", "tx1", 1.0); ok {
		t.Error("Expected second credit for same tx to be refused")
	}
	if got := s.Balance("user"); got != 1.0 {
		t.Errorf("Expected balance still 1.0, got %f", got)
	}
}

func TestApplyDeposit_UnknownAddress(t *testing.T) {
	s := newTestStore(t)
	if _, ok := s.ApplyDeposit("nope", "tx1", 1.0); ok {
		t.Error("Expected credit for unknown address to be refused")
	}
}

func TestEnqueueDeposit_Overwrites(t *testing.T) {
	s := newTestStore(t)
	s.EnqueueDeposit("addr", DepositEntry{UserID: "user", ExpectedAmount: 1.0, Timestamp: time.Now()})
	s.EnqueueDeposit("addr", DepositEntry{UserID: "user", ExpectedAmount: 2.5, Timestamp: time.Now()})

	entry := s.DepositSnapshot()["addr"]
	if entry.ExpectedAmount != 2.5 {
		t.Errorf("Expected overwritten expected amount 2.5, got %f", entry.ExpectedAmount)
	}
}

func TestMarkDepositAttempt(t *testing.T) {
	s := newTestStore(t)
	s.EnqueueDeposit("addr", DepositEntry{UserID: "user", Timestamp: time.Now().Add(-time.Hour)})

	attempts, age, ok := s.MarkDepositAttempt("addr")
	if !ok || attempts != 1 {
		t.Fatalf("Expected first attempt, got attempts=%d ok=%v", attempts, ok)
	}
	if age < 59*time.Minute {
		t.Errorf("Expected age of about an hour, got %s", age)
	}

	attempts, _, _ = s.MarkDepositAttempt("addr")
	if attempts != 2 {
		t.Errorf("Expected second attempt, got %d", attempts)
	}

	if _, _, ok := s.MarkDepositAttempt("gone"); ok {
		t.Error("Expected attempt on missing address to report not found")
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	s.Credit("a", 1.0)
	s.Credit("b", 2.0)
	s.AppendUsage("a", UsageEntry{Kind: "ai_query"})
	s.AppendUsage("a", UsageEntry{Kind: "ai_query"})
	s.EnqueueDeposit("addr", DepositEntry{UserID: "a", Timestamp: time.Now().Add(-10 * time.Minute), Attempts: 3})

	st := s.Stats()
	if st.TotalUsers != 2 {
		t.Errorf("Expected 2 users, got %d", st.TotalUsers)
	}
	if st.TotalBalance != 3.0 {
		t.Errorf("Expected total balance 3.0, got %f", st.TotalBalance)
	}
	if st.PendingDeposits != 1 {
		t.Errorf("Expected 1 pending deposit, got %d", st.PendingDeposits)
	}
	if st.TotalQueries != 2 {
		t.Errorf("Expected 2 queries, got %d", st.TotalQueries)
	}
	if st.PendingAttempts != 3 {
		t.Errorf("Expected 3 pending attempts, got %d", st.PendingAttempts)
	}
	if st.OldestPendingAgeSecs < 9*60 {
		t.Errorf("Expected oldest pending age of about 10 minutes, got %f", st.OldestPendingAgeSecs)
	}
}
