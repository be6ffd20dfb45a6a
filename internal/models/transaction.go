package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeEntry   TransactionType = "entry"
	TransactionTypeWin     TransactionType = "win"
	TransactionTypeRefund  TransactionType = "refund"
	TransactionTypeDeposit TransactionType = "deposit"
)

type Transaction struct {
	ID           string          `json:"id" redis:"id"`
	UserID       string          `json:"user_id" redis:"user_id"`
	Type         TransactionType `json:"type" redis:"type"`
	Amount       decimal.Decimal `json:"amount" redis:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after" redis:"balance_after"`
	ContestID    int64           `json:"contest_id,omitempty" redis:"contest_id"`
	Description  string          `json:"description" redis:"description"`
	CreatedAt    time.Time       `json:"created_at" redis:"created_at"`
}
