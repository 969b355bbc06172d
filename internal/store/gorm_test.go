package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-mp-engagement/pkg/database"
	"github.com/aldoetobex/legal-mp-engagement/pkg/models"
)

/* ===== helpers ===== */

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	_ = godotenv.Load("../../.env")

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is empty")
	}
	db, err := database.Init(dsn, false)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	// Clean up AFTER the test, not at the start.
	t.Cleanup(func() {
		sql := `
TRUNCATE TABLE
	payments,
	case_histories,
	case_files,
	quotes,
	cases,
	users
RESTART IDENTITY CASCADE`
		if err := db.Exec(sql).Error; err != nil {
			t.Logf("truncate failed (ignored): %v", err)
		}
	})
	return db
}

func seedUsers(t *testing.T, s Store) (client, lawyer uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	c := &models.User{Email: fmt.Sprintf("c+%s@test.local", uuid.NewString()), PasswordHash: "x", Role: models.RoleClient}
	l := &models.User{Email: fmt.Sprintf("l+%s@test.local", uuid.NewString()), PasswordHash: "x", Role: models.RoleLawyer}
	require.NoError(t, s.CreateUser(ctx, c))
	require.NoError(t, s.CreateUser(ctx, l))
	return c.ID, l.ID
}

/* ===== tests ===== */

func TestGorm_TxRollback(t *testing.T) {
	s := NewGorm(openTestDB(t))
	ctx := context.Background()
	clientID, _ := seedUsers(t, s)

	cs := &models.Case{ClientID: clientID, Title: "T", Category: "Cat", Status: models.CaseOpen}
	require.NoError(t, s.CreateCase(ctx, cs))

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx Store) error {
		locked, err := tx.LockCase(ctx, cs.ID)
		require.NoError(t, err)
		locked.Status = models.CaseEngaged
		require.NoError(t, tx.UpdateCase(ctx, locked))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetCase(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseOpen, got.Status)
}

func TestGorm_DuplicateQuoteAndLivePayment(t *testing.T) {
	s := NewGorm(openTestDB(t))
	ctx := context.Background()
	clientID, lawyerID := seedUsers(t, s)

	cs := &models.Case{ClientID: clientID, Title: "T", Category: "Cat", Status: models.CaseOpen}
	require.NoError(t, s.CreateCase(ctx, cs))

	q := &models.Quote{CaseID: cs.ID, LawyerID: lawyerID, Amount: decimal.RequireFromString("1500.00"), ExpectedDays: 30, Status: models.QuoteProposed}
	require.NoError(t, s.CreateQuote(ctx, q))
	dup := &models.Quote{CaseID: cs.ID, LawyerID: lawyerID, Amount: decimal.NewFromInt(1), ExpectedDays: 1, Status: models.QuoteProposed}
	assert.ErrorIs(t, s.CreateQuote(ctx, dup), ErrDuplicate)

	p := &models.Payment{CaseID: cs.ID, QuoteID: q.ID, ClientID: clientID, LawyerID: lawyerID, Amount: q.Amount, Currency: "usd", Status: models.PayPending}
	require.NoError(t, s.CreatePayment(ctx, p))
	again := &models.Payment{CaseID: cs.ID, QuoteID: q.ID, ClientID: clientID, LawyerID: lawyerID, Amount: q.Amount, Currency: "usd", Status: models.PayPending}
	assert.ErrorIs(t, s.CreatePayment(ctx, again), ErrDuplicate)

	p.Status = models.PayFailed
	require.NoError(t, s.UpdatePayment(ctx, p))
	require.NoError(t, s.CreatePayment(ctx, again))
}

func TestGorm_LockCaseSerializesWriters(t *testing.T) {
	s := NewGorm(openTestDB(t))
	ctx := context.Background()
	clientID, _ := seedUsers(t, s)

	cs := &models.Case{ClientID: clientID, Title: "T", Category: "Cat", Status: models.CaseOpen}
	require.NoError(t, s.CreateCase(ctx, cs))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithinTx(ctx, func(tx Store) error {
				locked, err := tx.LockCase(ctx, cs.ID)
				if err != nil {
					return err
				}
				if locked.Status != models.CaseOpen {
					return nil
				}
				locked.Status = models.CaseEngaged
				if err := tx.UpdateCase(ctx, locked); err != nil {
					return err
				}
				mu.Lock()
				winners++
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}
