package models

import "github.com/shopspring/decimal"

type Wallet struct {
	UserID         string          `json:"user_id" redis:"user_id"`
	Balance        decimal.Decimal `json:"balance" redis:"balance"`
	Wins           int             `json:"wins" redis:"wins"`
	ContestsPlayed int             `json:"contests_played" redis:"contests_played"`
	TotalEarnings  decimal.Decimal `json:"total_earnings" redis:"total_earnings"`
	TotalWagered   decimal.Decimal `json:"total_wagered" redis:"total_wagered"`
}

// WinRate is the percentage of settled contests the user won, rounded down.
func (w *Wallet) WinRate() int {
	if w.ContestsPlayed == 0 {
		return 0
	}
	return w.Wins * 100 / w.ContestsPlayed
}

type WalletResponse struct {
	Balance        decimal.Decimal `json:"balance"`
	Wins           int             `json:"wins"`
	TotalEarnings  decimal.Decimal `json:"totalEarnings"`
	WinRate        int             `json:"winRate"`
	ContestsPlayed int             `json:"contestsPlayed"`
}

func (w *Wallet) Response() WalletResponse {
	return WalletResponse{
		Balance:        w.Balance,
		Wins:           w.Wins,
		TotalEarnings:  w.TotalEarnings,
		WinRate:        w.WinRate(),
		ContestsPlayed: w.ContestsPlayed,
	}
}

type JoinRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type JoinResponse struct {
	Success    bool            `json:"success"`
	NewBalance decimal.Decimal `json:"newBalance"`
	Message    string          `json:"message"`
	ContestID  int64           `json:"contestId,omitempty"`
}

type TopUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type TopUpResponse struct {
	Success    bool            `json:"success"`
	NewBalance decimal.Decimal `json:"newBalance"`
	Message    string          `json:"message"`
}

type SelectTierRequest struct {
	Tier TierID `json:"tier" binding:"required"`
}
