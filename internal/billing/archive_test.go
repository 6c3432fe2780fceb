package billing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vnmchuo/whatspay/internal/state"
)

type mockRow struct {
	val any
	err error
}

func (r mockRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	switch d := dest[0].(type) {
	case *int64:
		d2, _ := r.val.(int64)
		*d = d2
	case *float64:
		d2, _ := r.val.(float64)
		*d = d2
	}
	return nil
}

type mockDB struct {
	rowVal   any
	rowErr   error
	execSQL  []string
	execArgs [][]any
	execErr  error
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return mockRow{val: m.rowVal, err: m.rowErr}
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execSQL = append(m.execSQL, sql)
	m.execArgs = append(m.execArgs, args)
	return pgconn.NewCommandTag("INSERT 0 1"), m.execErr
}

func TestInsert(t *testing.T) {
	db := &mockDB{}
	a := NewArchive(db)

	entry := state.UsageEntry{
		ID:           "entry-1",
		Timestamp:    time.Now(),
		Kind:         "ai_query",
		Cost:         0.02,
		InputTokens:  120,
		OutputTokens: 80,
		Preview:      "hello",
	}
	if err := a.Insert(context.Background(), "+15551234", entry); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if len(db.execSQL) != 1 || !strings.Contains(db.execSQL[0], "INSERT INTO usage_archive") {
		t.Errorf("Unexpected SQL: %v", db.execSQL)
	}
	args := db.execArgs[0]
	if args[0] != "entry-1" || args[1] != "+15551234" || args[3] != 0.02 {
		t.Errorf("Unexpected args: %v", args)
	}
}

func TestInsert_Error(t *testing.T) {
	a := NewArchive(&mockDB{execErr: errors.New("connection reset")})

	if err := a.Insert(context.Background(), "user", state.UsageEntry{}); err == nil {
		t.Error("Expected insert error to surface")
	}
}

func TestCount(t *testing.T) {
	a := NewArchive(&mockDB{rowVal: int64(42)})

	n, err := a.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 42 {
		t.Errorf("Expected 42, got %d", n)
	}
}

func TestTotalSpent(t *testing.T) {
	a := NewArchive(&mockDB{rowVal: 1.25})

	total, err := a.TotalSpent(context.Background(), "user")
	if err != nil {
		t.Fatalf("TotalSpent failed: %v", err)
	}
	if total != 1.25 {
		t.Errorf("Expected 1.25, got %f", total)
	}
}

func TestTotalSpent_Error(t *testing.T) {
	a := NewArchive(&mockDB{rowErr: errors.New("connection reset")})

	if _, err := a.TotalSpent(context.Background(), "user"); err == nil {
		t.Error("Expected query error to surface")
	}
}
