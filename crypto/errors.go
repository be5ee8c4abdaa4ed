package crypto

import "errors"

var (
	ErrInvalidSigningAlg     = errors.New("unexpected token signing algorithm")
	ErrExpiredToken          = errors.New("token expired")
	ErrInvalidTokenSignature = errors.New("invalid token signature")
	ErrCorruptedToken        = errors.New("corrupted token")

	UnexpectedTokenGenerationError   = errors.New("unexpected token generation error")
	UnexpectedTokenVerificationError = errors.New("unexpected token verification error")
)
