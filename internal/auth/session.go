package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound indicates an unknown or expired session token.
var ErrSessionNotFound = errors.New("auth: session not found")

// SessionData is what a token resolves to.
type SessionData struct {
	UserID    int64 `json:"user_id"`
	CompanyID int64 `json:"company_id"`
}

// SessionManager stores bearer-token sessions in Redis with a sliding TTL.
type SessionManager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, ttl time.Duration) *SessionManager {
	return &SessionManager{client: client, ttl: ttl}
}

// Create issues a new token for the given session data.
func (sm *SessionManager) Create(ctx context.Context, data SessionData) (string, error) {
	token := uuid.NewString()
	payload, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	if err := sm.client.Set(ctx, sm.redisKey(token), payload, sm.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Get resolves a token and refreshes its TTL.
func (sm *SessionManager) Get(ctx context.Context, token string) (SessionData, error) {
	if token == "" {
		return SessionData{}, ErrSessionNotFound
	}
	payload, err := sm.client.Get(ctx, sm.redisKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return SessionData{}, ErrSessionNotFound
		}
		return SessionData{}, err
	}
	var data SessionData
	if err := json.Unmarshal(payload, &data); err != nil {
		return SessionData{}, err
	}
	_ = sm.client.Expire(ctx, sm.redisKey(token), sm.ttl).Err()
	return data, nil
}

// Delete revokes a token.
func (sm *SessionManager) Delete(ctx context.Context, token string) error {
	err := sm.client.Del(ctx, sm.redisKey(token)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

func (sm *SessionManager) redisKey(token string) string {
	return "session:" + token
}
