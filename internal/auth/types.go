package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// represents JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Tier   string `json:"tier"`
	jwt.RegisteredClaims
}

// gin context keys set by IdentityMiddleware
const (
	ContextCallerID  = "caller_id"
	ContextTier      = "tier"
	ContextUserEmail = "user_email"
	ContextAnonymous = "anonymous"
)

// header an unauthenticated client may use to pick a stable identity
const ClientIDHeader = "X-Client-Id"

// echoed on every identified response so logs can be matched to a request
const RequestIDHeader = "X-Request-Id"

const maxClientIDLength = 128
