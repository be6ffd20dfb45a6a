package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"contest-miniapp-backend/internal/config"
	"contest-miniapp-backend/internal/contest"
	"contest-miniapp-backend/internal/models"
)

type RedisService struct {
	client *redis.Client
}

func NewRedisService(cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisService{client: client}, nil
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Sessions and users

func (s *RedisService) StoreUserSession(ctx context.Context, session *models.UserSession, expiry time.Duration) error {
	key := fmt.Sprintf(KeyUserSession, session.ID, session.SessionID)

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, key, data, expiry).Err()
}

func (s *RedisService) GetUserSession(ctx context.Context, userID int64, sessionID string) (*models.UserSession, error) {
	key := fmt.Sprintf(KeyUserSession, userID, sessionID)

	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var session models.UserSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, err
	}

	session.LastAccessed = time.Now()
	if updated, err := json.Marshal(session); err == nil {
		s.client.Set(ctx, key, updated, TTLUserSession)
	}

	return &session, nil
}

func (s *RedisService) DeleteUserSession(ctx context.Context, userID int64, sessionID string) error {
	key := fmt.Sprintf(KeyUserSession, userID, sessionID)
	return s.client.Del(ctx, key).Err()
}

func (s *RedisService) StoreUser(ctx context.Context, user *models.TelegramUser) error {
	key := fmt.Sprintf(KeyUserInfo, user.ID)

	data, err := json.Marshal(user)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, key, data, TTLUserInfo).Err()
}

func (s *RedisService) GetUser(ctx context.Context, userID int64) (*models.TelegramUser, error) {
	key := fmt.Sprintf(KeyUserInfo, userID)

	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var user models.TelegramUser
	err = json.Unmarshal([]byte(data), &user)
	return &user, err
}

// Wallet mirror. The ledger in memory is authoritative; these copies seed it
// after a restart.

// GetWallet returns the persisted wallet, or nil if the user has none.
func (s *RedisService) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	key := fmt.Sprintf(KeyWallet, userID)

	data, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	var wallet models.Wallet
	if err := json.Unmarshal([]byte(data), &wallet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet: %w", err)
	}

	return &wallet, nil
}

func (s *RedisService) SaveWallet(ctx context.Context, wallet models.Wallet) error {
	key := fmt.Sprintf(KeyWallet, wallet.UserID)

	data, err := json.Marshal(wallet)
	if err != nil {
		return fmt.Errorf("failed to marshal wallet: %w", err)
	}

	return s.client.Set(ctx, key, data, 0).Err()
}

func (s *RedisService) DeleteWallet(ctx context.Context, userID string) error {
	key := fmt.Sprintf(KeyWallet, userID)
	return s.client.Del(ctx, key).Err()
}

// Contest snapshot

// saveSnapshotScript only replaces the stored snapshot when the incoming
// contest id is not older than the stored one.
var saveSnapshotScript = redis.NewScript(`
	local key = KEYS[1]
	local id = tonumber(ARGV[1])
	local ttl = tonumber(ARGV[3])

	local current = redis.call("HGET", key, "id")
	if current and tonumber(current) > id then
		return 0
	end

	redis.call("HSET", key, "id", ARGV[1], "data", ARGV[2])
	if ttl > 0 then
		redis.call("EXPIRE", key, ttl)
	end

	return 1
`)

// SaveSnapshot stores snap unless a newer contest is already recorded. It
// reports whether the write happened.
func (s *RedisService) SaveSnapshot(ctx context.Context, snap models.ContestSnapshot) (bool, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	written, err := saveSnapshotScript.Run(ctx, s.client, []string{KeyContestSnapshot},
		snap.ID, data, int64(TTLSnapshot/time.Second)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to save snapshot: %w", err)
	}
	return written == 1, nil
}

// LoadSnapshot implements contest.SnapshotSource.
func (s *RedisService) LoadSnapshot(ctx context.Context) (*models.ContestSnapshot, error) {
	data, err := s.client.HGet(ctx, KeyContestSnapshot, "data").Result()
	if errors.Is(err, redis.Nil) {
		return nil, contest.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap models.ContestSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %v: %w", err, contest.ErrClockDesync)
	}
	return &snap, nil
}

func (s *RedisService) DeleteSnapshot(ctx context.Context) error {
	return s.client.Del(ctx, KeyContestSnapshot).Err()
}

// Settlement history

func (s *RedisService) SaveSettlement(ctx context.Context, settlement *models.Settlement) error {
	data, err := json.Marshal(settlement)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement: %w", err)
	}

	key := fmt.Sprintf(KeyContestSettlement, settlement.ContestID)
	created, err := s.client.SetNX(ctx, key, data, TTLSettlement).Result()
	if err != nil {
		return fmt.Errorf("failed to save settlement: %w", err)
	}
	if !created {
		// already recorded
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, KeyRecentSettlements, data)
	pipe.LTrim(ctx, KeyRecentSettlements, 0, MaxRecentSettlements-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record settlement history: %w", err)
	}
	return nil
}

func (s *RedisService) GetSettlement(ctx context.Context, contestID int64) (*models.Settlement, error) {
	key := fmt.Sprintf(KeyContestSettlement, contestID)

	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("settlement not found: %d", contestID)
		}
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}

	var settlement models.Settlement
	if err := json.Unmarshal([]byte(data), &settlement); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settlement: %w", err)
	}
	return &settlement, nil
}

// RecentSettlements returns up to limit settlements, newest first.
func (s *RedisService) RecentSettlements(ctx context.Context, limit int64) ([]models.Settlement, error) {
	if limit <= 0 || limit > MaxRecentSettlements {
		limit = 5
	}

	items, err := s.client.LRange(ctx, KeyRecentSettlements, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get settlements: %w", err)
	}

	settlements := make([]models.Settlement, 0, len(items))
	for _, item := range items {
		var settlement models.Settlement
		if err := json.Unmarshal([]byte(item), &settlement); err != nil {
			continue
		}
		settlements = append(settlements, settlement)
	}
	return settlements, nil
}

// Transactions

func (s *RedisService) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	txKey := fmt.Sprintf(KeyTransaction, tx.ID)

	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}

	if err := s.client.Set(ctx, txKey, data, TTLTransaction).Err(); err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}

	userTxKey := fmt.Sprintf(KeyUserTransactions, tx.UserID)
	if err := s.client.ZAdd(ctx, userTxKey, redis.Z{
		Score:  float64(tx.CreatedAt.UnixMilli()),
		Member: tx.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to user transactions: %w", err)
	}

	// Keep only the latest transactions
	s.client.ZRemRangeByRank(ctx, userTxKey, 0, -MaxUserTransactions-1)

	return nil
}

func (s *RedisService) GetUserTransactions(ctx context.Context, userID string, limit int64) ([]*models.Transaction, error) {
	if limit <= 0 || limit > MaxUserTransactions {
		limit = 50
	}

	userTxKey := fmt.Sprintf(KeyUserTransactions, userID)

	txIDs, err := s.client.ZRevRange(ctx, userTxKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction IDs: %w", err)
	}
	if len(txIDs) == 0 {
		return []*models.Transaction{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(txIDs))
	for i, txID := range txIDs {
		cmds[i] = pipe.Get(ctx, fmt.Sprintf(KeyTransaction, txID))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pipeline execution failed: %w", err)
	}

	transactions := make([]*models.Transaction, 0, len(cmds))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			continue
		}

		var tx models.Transaction
		if err := json.Unmarshal([]byte(data), &tx); err != nil {
			continue
		}
		transactions = append(transactions, &tx)
	}

	return transactions, nil
}

// Rate limiting

func (s *RedisService) CheckRateLimit(ctx context.Context, userID int64, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, userID, action)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	if count == 1 {
		s.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

func (s *RedisService) ClearRateLimit(ctx context.Context, userID int64, action string) error {
	key := fmt.Sprintf(KeyRateLimit, userID, action)
	return s.client.Del(ctx, key).Err()
}
