package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"contest-miniapp-backend/internal/config"
	"contest-miniapp-backend/internal/contest"
	"contest-miniapp-backend/internal/models"
	"contest-miniapp-backend/internal/services"
)

func setupTestRedis(t *testing.T) *services.RedisService {
	t.Helper()

	cfg := &config.Config{
		RedisURL:  "localhost:6379",
		RedisPass: "",
		RedisDB:   15,
	}

	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { redisService.Close() })
	return redisService
}

func TestRedisWallet(t *testing.T) {
	redisService := setupTestRedis(t)
	ctx := context.Background()
	userID := "user_999999"
	defer redisService.DeleteWallet(ctx, userID)

	wallet, err := redisService.GetWallet(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to get wallet: %v", err)
	}
	if wallet != nil {
		t.Fatalf("Expected no stored wallet, got %+v", wallet)
	}

	stored := models.Wallet{
		UserID:         userID,
		Balance:        decimal.RequireFromString("0.04225"),
		Wins:           1,
		ContestsPlayed: 2,
		TotalEarnings:  decimal.RequireFromString("0.01225"),
	}
	if err := redisService.SaveWallet(ctx, stored); err != nil {
		t.Fatalf("Failed to save wallet: %v", err)
	}

	wallet, err = redisService.GetWallet(ctx, userID)
	if err != nil || wallet == nil {
		t.Fatalf("Failed to read back wallet: %v", err)
	}
	if !wallet.Balance.Equal(stored.Balance) || wallet.Wins != 1 || wallet.ContestsPlayed != 2 {
		t.Errorf("Wallet mismatch: %+v", wallet)
	}
}

func TestRedisSnapshot(t *testing.T) {
	redisService := setupTestRedis(t)
	ctx := context.Background()
	defer redisService.DeleteSnapshot(ctx)

	redisService.DeleteSnapshot(ctx)
	if _, err := redisService.LoadSnapshot(ctx); !errors.Is(err, contest.ErrNoSnapshot) {
		t.Fatalf("Expected ErrNoSnapshot, got %v", err)
	}

	snap := models.ContestSnapshot{
		ID:           100,
		StartTime:    time.Now().UnixMilli(),
		Participants: []models.Participant{{ID: "user_1", DisplayName: "one", AvatarToken: "🎮"}},
		EntryFee:     decimal.RequireFromString("0.01"),
		Tier:         models.TierRookie,
	}
	if written, err := redisService.SaveSnapshot(ctx, snap); err != nil || !written {
		t.Fatalf("Failed to save snapshot: written=%v err=%v", written, err)
	}

	older := snap
	older.ID = 99
	if written, err := redisService.SaveSnapshot(ctx, older); err != nil || written {
		t.Errorf("Older snapshot must not overwrite: written=%v err=%v", written, err)
	}

	loaded, err := redisService.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}
	if loaded.ID != 100 || len(loaded.Participants) != 1 || !loaded.EntryFee.Equal(snap.EntryFee) {
		t.Errorf("Snapshot mismatch: %+v", loaded)
	}
}

func TestRedisSettlements(t *testing.T) {
	redisService := setupTestRedis(t)
	ctx := context.Background()

	contestID := time.Now().UnixNano()
	settlement := &models.Settlement{
		ContestID:       contestID,
		Participants:    5,
		Winners:         []models.Participant{{ID: "user_1"}},
		PrizePool:       decimal.RequireFromString("0.049"),
		PayoutPerWinner: decimal.RequireFromString("0.01225"),
		SettledAt:       time.Now(),
	}

	if err := redisService.SaveSettlement(ctx, settlement); err != nil {
		t.Fatalf("Failed to save settlement: %v", err)
	}
	// saving again is a no-op
	if err := redisService.SaveSettlement(ctx, settlement); err != nil {
		t.Fatalf("Failed to re-save settlement: %v", err)
	}

	recent, err := redisService.RecentSettlements(ctx, 5)
	if err != nil {
		t.Fatalf("Failed to list settlements: %v", err)
	}
	if len(recent) == 0 || recent[0].ContestID != contestID {
		t.Fatalf("Newest settlement should be first, got %+v", recent)
	}
	if len(recent) > 1 && recent[1].ContestID == contestID {
		t.Error("Settlement recorded twice in history")
	}

	got, err := redisService.GetSettlement(ctx, contestID)
	if err != nil || !got.PayoutPerWinner.Equal(settlement.PayoutPerWinner) {
		t.Errorf("GetSettlement mismatch: %+v err=%v", got, err)
	}
}

func TestRedisTransactions(t *testing.T) {
	redisService := setupTestRedis(t)
	ctx := context.Background()
	userID := "user_888888"

	for i, kind := range []models.TransactionType{models.TransactionTypeDeposit, models.TransactionTypeEntry} {
		tx := &models.Transaction{
			ID:        models.GenerateTransactionID(),
			UserID:    userID,
			Type:      kind,
			Amount:    decimal.RequireFromString("0.01"),
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := redisService.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("Failed to save transaction: %v", err)
		}
	}

	txs, err := redisService.GetUserTransactions(ctx, userID, 2)
	if err != nil {
		t.Fatalf("Failed to get transactions: %v", err)
	}
	if len(txs) != 2 || txs[0].Type != models.TransactionTypeEntry {
		t.Errorf("Expected newest first, got %+v", txs)
	}
}

func TestRedisRateLimit(t *testing.T) {
	redisService := setupTestRedis(t)
	ctx := context.Background()
	userID := int64(999999)
	defer redisService.ClearRateLimit(ctx, userID, "join")

	redisService.ClearRateLimit(ctx, userID, "join")
	for i := 0; i < 2; i++ {
		allowed, err := redisService.CheckRateLimit(ctx, userID, "join", 2, time.Minute)
		if err != nil {
			t.Fatalf("Failed to check rate limit: %v", err)
		}
		if !allowed {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	allowed, _ := redisService.CheckRateLimit(ctx, userID, "join", 2, time.Minute)
	if allowed {
		t.Error("Third request should be limited")
	}
}

func TestRedisUserSession(t *testing.T) {
	redisService := setupTestRedis(t)
	ctx := context.Background()

	user := &models.TelegramUser{ID: 777, FirstName: "Ada", Username: "ada"}
	session := &models.UserSession{
		ID:           user.ID,
		SessionID:    models.GenerateSessionID(),
		TelegramUser: user,
		CreatedAt:    time.Now(),
	}
	if err := redisService.StoreUserSession(ctx, session, time.Minute); err != nil {
		t.Fatalf("Failed to store session: %v", err)
	}
	if err := redisService.StoreUser(ctx, user); err != nil {
		t.Fatalf("Failed to store user: %v", err)
	}

	got, err := redisService.GetUserSession(ctx, user.ID, session.SessionID)
	if err != nil || got.TelegramUser.Username != "ada" {
		t.Fatalf("Session mismatch: %+v err=%v", got, err)
	}

	if err := redisService.DeleteUserSession(ctx, user.ID, session.SessionID); err != nil {
		t.Fatalf("Failed to delete session: %v", err)
	}
	if _, err := redisService.GetUserSession(ctx, user.ID, session.SessionID); err == nil {
		t.Error("Deleted session should not be found")
	}
}
