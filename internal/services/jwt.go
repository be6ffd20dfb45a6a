package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"contest-miniapp-backend/internal/config"
)

type Claims struct {
	UserID    int64  `json:"user_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

type JWTService struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

func NewJWTService(cfg *config.Config) *JWTService {
	secret := cfg.JWTSecret
	if secret == "" {
		// development only; config refuses an empty secret in production
		secret = "dev-secret-change-me"
	}
	return &JWTService{
		secret: []byte(secret),
		ttl:    cfg.JWTTTL,
		issuer: "contest-miniapp-backend",
	}
}

func (s *JWTService) GenerateToken(userID int64, sessionID string) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(s.ttl)

	claims := Claims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid || claims.UserID == 0 || claims.SessionID == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
