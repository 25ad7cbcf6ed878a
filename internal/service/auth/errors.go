package auth

import "errors"

// Validation failures returned by JWTService.ValidateToken. The middleware
// answers 401 for all of them and only tells the client apart an expired
// token, so it can re-authenticate against the user directory.
var (
	// ErrInvalidToken covers malformed tokens, bad signatures and missing claims.
	ErrInvalidToken = errors.New("invalid owner token")

	ErrExpiredToken     = errors.New("owner token has expired")
	ErrTokenNotYetValid = errors.New("owner token not yet valid")

	// ErrWrongTokenType rejects a validly signed token minted for another use.
	ErrWrongTokenType = errors.New("wrong owner token type")
)
