package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"presale-referral/internal/blockchain"
	"presale-referral/internal/database"
	"presale-referral/internal/metrics"
	"presale-referral/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens an in-memory store on a single connection so transactions serialize
func setupTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		tb.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.AutoMigrate(db, zap.NewNop()); err != nil {
		tb.Fatalf("failed to migrate database: %v", err)
	}

	return db
}

type testEnv struct {
	db        *gorm.DB
	metrics   *metrics.Metrics
	referrals *ReferralService
	chain     *ChainService
	calc      *RewardCalculator
	ledger    *LedgerService
	purchases *PurchaseService
	dashboard *DashboardService
	auth      *AuthService
}

func newTestEnv(tb testing.TB, verifier blockchain.Verifier) *testEnv {
	tb.Helper()

	db := setupTestDB(tb)
	log := zap.NewNop()
	m := metrics.New()

	env := &testEnv{db: db, metrics: m}
	env.referrals = NewReferralService(db, log, m)
	env.chain = NewChainService(db)
	env.calc = NewRewardCalculator(defaultRewardsConfig())
	env.ledger = NewLedgerService(db, verifier, log, m)
	env.purchases = NewPurchaseService(db, env.referrals, env.chain, env.calc, env.ledger, verifier, log, m)
	env.dashboard = NewDashboardService(db, env.referrals, env.ledger, log)
	env.auth = NewAuthService(db, env.referrals, 5*time.Minute, log)
	return env
}

func (e *testEnv) createUser(tb testing.TB, wallet string) *models.User {
	tb.Helper()
	user := &models.User{WalletAddress: wallet, IsActive: true}
	if err := e.db.Create(user).Error; err != nil {
		tb.Fatalf("failed to create user: %v", err)
	}
	return user
}

// createUserWithCode creates a user holding a fixed referral code
func (e *testEnv) createUserWithCode(tb testing.TB, wallet, code string) *models.User {
	tb.Helper()
	user := &models.User{WalletAddress: wallet, ReferralCode: &code, IsActive: true}
	if err := e.db.Create(user).Error; err != nil {
		tb.Fatalf("failed to create user: %v", err)
	}
	return user
}

// refer binds referred to referrer through the registry
func (e *testEnv) refer(tb testing.TB, referrer, referred *models.User) {
	tb.Helper()
	code, err := e.referrals.GetOrCreateCode(context.Background(), referrer.ID)
	if err != nil {
		tb.Fatalf("failed to get code: %v", err)
	}
	if _, err := e.referrals.RegisterReferral(context.Background(), referred.ID, code); err != nil {
		tb.Fatalf("failed to register referral: %v", err)
	}
}

// buy records and confirms a purchase, returning its id
func (e *testEnv) buy(tb testing.TB, user *models.User, n int, usd string) *models.Purchase {
	tb.Helper()
	ctx := context.Background()
	res, err := e.purchases.RecordPurchase(ctx, RecordPurchaseInput{
		UserID:       user.ID,
		TxHash:       evmHash(n),
		AmountUSD:    decimal.RequireFromString(usd),
		AmountTokens: decimal.RequireFromString(usd).Mul(decimal.NewFromInt(10)),
		TokenPrice:   decimal.RequireFromString("0.1"),
	})
	if err != nil {
		tb.Fatalf("failed to record purchase: %v", err)
	}
	p, err := e.purchases.ConfirmPurchase(ctx, res.PurchaseID, int64(1000+n))
	if err != nil {
		tb.Fatalf("failed to confirm purchase: %v", err)
	}
	return p
}

func (e *testEnv) countRows(tb testing.TB, model interface{}, query string, args ...interface{}) int64 {
	tb.Helper()
	var n int64
	q := e.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		tb.Fatalf("count failed: %v", err)
	}
	return n
}

func evmHash(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

// fakeVerifier returns canned chain answers keyed by tx hash
type fakeVerifier struct {
	mu      sync.Mutex
	results map[string]*blockchain.TxVerification
	err     error
	calls   int
	queried map[string]int
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{
		results: make(map[string]*blockchain.TxVerification),
		queried: make(map[string]int),
	}
}

func (f *fakeVerifier) set(txHash string, block int64, success bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[txHash] = &blockchain.TxVerification{TxHash: txHash, Found: true, Success: success, BlockNumber: block}
}

func (f *fakeVerifier) VerifyTransaction(_ context.Context, txHash string) (*blockchain.TxVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.queried[txHash]++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.results[txHash]; ok {
		cp := *v
		return &cp, nil
	}
	return &blockchain.TxVerification{TxHash: txHash}, nil
}
