package models

import "time"

type TelegramUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
}

// ParticipantID is the contest identity of a Telegram user.
func (u *TelegramUser) ParticipantID() string {
	return UserParticipantID(u.ID)
}

func (u *TelegramUser) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.FirstName
}

type UserSession struct {
	ID           int64         `json:"id"`
	SessionID    string        `json:"session_id"`
	TelegramUser *TelegramUser `json:"telegram_user"`
	CreatedAt    time.Time     `json:"created_at"`
	LastAccessed time.Time     `json:"last_accessed"`
}
