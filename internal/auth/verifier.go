// Package auth delegates session handling to the managed auth service. The
// core only needs one question answered: which user does this bearer
// credential belong to. Every failure collapses into a single "invalid or
// missing session" condition.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidSession is the single failure mode of credential verification.
var ErrInvalidSession = errors.New("invalid or missing session")

// Verifier resolves a bearer credential to the owning user.
type Verifier interface {
	VerifyToken(authHeader string) (uuid.UUID, error)
}

// JWTVerifier validates HS256 tokens issued by the auth service locally,
// using the shared signing secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// VerifyToken parses and validates the token and returns the user id from
// the sub claim.
func (v *JWTVerifier) VerifyToken(authHeader string) (uuid.UUID, error) {
	tokenString := bearerToken(authHeader)
	if tokenString == "" {
		return uuid.Nil, ErrInvalidSession
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidSession
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, ErrInvalidSession
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, ErrInvalidSession
	}

	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, ErrInvalidSession
	}
	return userID, nil
}

// RemoteVerifier asks the auth service directly, for deployments that do not
// share the signing secret with this process.
type RemoteVerifier struct {
	baseURL string
	client  *http.Client
}

// NewRemoteVerifier creates a new remote verifier
func NewRemoteVerifier(baseURL string) *RemoteVerifier {
	return &RemoteVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// VerifyToken forwards the credential to the auth service's user endpoint.
func (v *RemoteVerifier) VerifyToken(authHeader string) (uuid.UUID, error) {
	tokenString := bearerToken(authHeader)
	if tokenString == "" {
		return uuid.Nil, ErrInvalidSession
	}

	req, err := http.NewRequest(http.MethodGet, v.baseURL+"/user", nil)
	if err != nil {
		return uuid.Nil, ErrInvalidSession
	}
	req.Header.Set("Authorization", "Bearer "+tokenString)

	resp, err := v.client.Do(req)
	if err != nil {
		return uuid.Nil, ErrInvalidSession
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return uuid.Nil, ErrInvalidSession
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return uuid.Nil, ErrInvalidSession
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return uuid.Nil, ErrInvalidSession
	}

	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return uuid.Nil, ErrInvalidSession
	}
	return userID, nil
}

// MockVerifier accepts any non-empty credential and returns a fixed user.
// For development and testing only.
type MockVerifier struct {
	UserID uuid.UUID
}

// NewMockVerifier creates a new mock verifier
func NewMockVerifier(userID uuid.UUID) *MockVerifier {
	return &MockVerifier{UserID: userID}
}

func (m *MockVerifier) VerifyToken(authHeader string) (uuid.UUID, error) {
	if bearerToken(authHeader) == "" {
		return uuid.Nil, ErrInvalidSession
	}
	return m.UserID, nil
}

// NewVerifierFromEnv picks the verifier for this deployment: local JWT
// validation when the signing secret is shared, the auth service's user
// endpoint otherwise, and a mock as the development fallback.
func NewVerifierFromEnv() Verifier {
	if secret := os.Getenv("AUTH_JWT_SECRET"); secret != "" {
		return NewJWTVerifier(secret)
	}
	if baseURL := os.Getenv("AUTH_SERVICE_URL"); baseURL != "" {
		return NewRemoteVerifier(baseURL)
	}
	log.Println("⚠️ No auth configuration found, using mock verifier")
	return NewMockVerifier(uuid.New())
}

func bearerToken(authHeader string) string {
	header := strings.TrimSpace(authHeader)
	if header == "" {
		return ""
	}
	if len(header) >= 7 && strings.EqualFold(header[:7], "bearer ") {
		header = header[7:]
	}
	return strings.TrimSpace(header)
}
