// Package auth provides optional JWT bearer authentication for the HTTP
// gateway. With no signing key configured the gateway runs open and requests
// carry an anonymous reader identity.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "storyland"

// Reader roles.
const (
	RoleReader = "reader"
	RoleAdmin  = "admin"
)

// JWTManager signs and validates reader tokens.
type JWTManager struct {
	signingKey []byte
	expiry     time.Duration
}

func NewJWTManager(signingKey string, expiry time.Duration) *JWTManager {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &JWTManager{signingKey: []byte(signingKey), expiry: expiry}
}

// Enabled reports whether a signing key is configured.
func (j *JWTManager) Enabled() bool { return len(j.signingKey) > 0 }

// CustomClaims carries the reader identity inside the token.
type CustomClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// ReaderContext is the authenticated identity attached to a request.
type ReaderContext struct {
	UserID string
	Role   string
}

// Generate signs a token for the given reader.
func (j *JWTManager) Generate(userID, role string) (string, error) {
	if role == "" {
		role = RoleReader
	}
	now := time.Now()
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiry)),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.signingKey)
}

// Validate parses a token and returns the reader identity it carries.
func (j *JWTManager) Validate(tokenString string) (*ReaderContext, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Issuer != issuer {
		return nil, fmt.Errorf("invalid token issuer")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token missing subject")
	}
	return &ReaderContext{UserID: claims.Subject, Role: claims.Role}, nil
}

// ExtractBearerToken pulls the token out of an Authorization header.
func ExtractBearerToken(authHeader string) (string, error) {
	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return "", fmt.Errorf("invalid authorization header format")
	}
	return authHeader[7:], nil
}
