package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"contest-miniapp-backend/internal/models"
)

var (
	ErrInitDataHash    = errors.New("init data hash mismatch")
	ErrInitDataExpired = errors.New("init data expired")
	ErrInitDataUser    = errors.New("init data has no user")
)

// TelegramAuth validates the initData string a Telegram Web App receives
// at launch.
type TelegramAuth struct {
	secret []byte
	maxAge time.Duration
}

func NewTelegramAuth(botToken string, maxAge time.Duration) *TelegramAuth {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))

	return &TelegramAuth{
		secret: mac.Sum(nil),
		maxAge: maxAge,
	}
}

// Validate checks the signature and freshness of initData and returns the
// user it carries.
func (a *TelegramAuth) Validate(initData string) (*models.TelegramUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("parse init data: %w", err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, ErrInitDataHash
	}
	if !hmac.Equal([]byte(hash), []byte(a.Sign(values))) {
		return nil, ErrInitDataHash
	}

	if a.maxAge > 0 {
		authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil || time.Since(time.Unix(authDate, 0)) > a.maxAge {
			return nil, ErrInitDataExpired
		}
	}

	raw := values.Get("user")
	if raw == "" {
		return nil, ErrInitDataUser
	}
	var user models.TelegramUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil || user.ID == 0 {
		return nil, ErrInitDataUser
	}
	return &user, nil
}

// Sign computes the hash Telegram attaches to initData: the HMAC of every
// other field as sorted key=value lines.
func (a *TelegramAuth) Sign(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + values.Get(k)
	}

	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
