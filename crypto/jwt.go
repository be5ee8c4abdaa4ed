package crypto

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// jwtCustomClaims is an unexported struct used for claims.
// Fields must be exported for JSON serialization.
type jwtCustomClaims struct {
	AccountID string `json:"aid"`
	Channel   uint8  `json:"ch"`
	jwt.RegisteredClaims
}

// JWTManager issues and verifies the short-lived redirect tokens a client
// presents after being handed off to a channel.
type JWTManager struct {
	secretKey []byte
	maxAge    time.Duration
}

func NewJWTManager(secretKey string, maxAge time.Duration) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secretKey),
		maxAge:    maxAge,
	}
}

func (m *JWTManager) Generate(accountID uint32, channel uint8, now time.Time) (string, error) {
	claims := jwtCustomClaims{
		AccountID: strconv.FormatUint(uint64(accountID), 10),
		Channel:   channel,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(m.secretKey)

	if err != nil {
		return "", fmt.Errorf("%w: %w", UnexpectedTokenGenerationError, err)
	}

	return signedToken, nil
}

// Verify returns the account id and channel if the token is valid.
func (m *JWTManager) Verify(tokenString string) (uint32, uint8, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwtCustomClaims{}, func(token *jwt.Token) (any, error) {
		// Validate the signing method is what we expect (HMAC)
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSigningAlg
		}
		return m.secretKey, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSigningAlg):
			return 0, 0, err
		case errors.Is(err, jwt.ErrTokenExpired):
			return 0, 0, ErrExpiredToken
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return 0, 0, ErrInvalidTokenSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return 0, 0, ErrCorruptedToken
		default:
			return 0, 0, fmt.Errorf("%w: %w", UnexpectedTokenVerificationError, err)
		}
	}

	claims, ok := token.Claims.(*jwtCustomClaims)
	if !ok || !token.Valid {
		return 0, 0, ErrCorruptedToken
	}

	accountID, err := strconv.ParseUint(claims.AccountID, 10, 32)
	if err != nil {
		return 0, 0, ErrCorruptedToken
	}
	return uint32(accountID), claims.Channel, nil
}
