package services

import "time"

const (
	KeyUserSession       = "user:%d:session:%s"
	KeyUserInfo          = "user:%d:info"
	KeyWallet            = "wallet:%s"
	KeyContestSnapshot   = "contest:snapshot"
	KeyContestSettlement = "contest:%d:settlement"
	KeyRecentSettlements = "contest:settlements"
	KeyTransaction       = "transaction:%s"
	KeyUserTransactions  = "wallet:%s:transactions"
	KeyRateLimit         = "ratelimit:%d:%s"

	TTLUserSession = 24 * time.Hour
	TTLUserInfo    = 30 * 24 * time.Hour // 30 days
	TTLSettlement  = 7 * 24 * time.Hour
	TTLTransaction = 30 * 24 * time.Hour // 30 days
	TTLSnapshot    = 10 * time.Minute

	MaxRecentSettlements = 50
	MaxUserTransactions  = 100

	DefaultRateLimitJoins = 10 // per minute
)
