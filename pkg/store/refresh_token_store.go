package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInvalidRefreshToken indicates token not found or expired.
var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// RefreshTokenStore persists refresh tokens with rotation.
type RefreshTokenStore interface {
	NewToken(userID string, ttl time.Duration) (string, error)
	RotateToken(token string, ttl time.Duration) (userID string, newToken string, err error)
	DeleteToken(token string) error
	RevokeUserTokens(userID string) error
}

type memoryRefreshEntry struct {
	userID string
	expiry time.Time
}

// MemoryRefreshTokenStore keeps refresh tokens in memory.
type MemoryRefreshTokenStore struct {
	mu     sync.Mutex
	tokens map[string]memoryRefreshEntry // token hash -> entry
}

// NewMemoryRefreshTokenStore constructs an in-memory refresh token store.
func NewMemoryRefreshTokenStore() *MemoryRefreshTokenStore {
	return &MemoryRefreshTokenStore{tokens: make(map[string]memoryRefreshEntry)}
}

// NewToken issues and stores a refresh token for the user.
func (s *MemoryRefreshTokenStore) NewToken(userID string, ttl time.Duration) (string, error) {
	token, err := generateRefreshToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.tokens[refreshTokenHash(token)] = memoryRefreshEntry{
		userID: userID,
		expiry: time.Now().UTC().Add(ttl),
	}
	s.mu.Unlock()
	return token, nil
}

// RotateToken invalidates the presented token and issues a replacement.
func (s *MemoryRefreshTokenStore) RotateToken(token string, ttl time.Duration) (string, string, error) {
	hash := refreshTokenHash(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[hash]
	if !ok || time.Now().UTC().After(entry.expiry) {
		delete(s.tokens, hash)
		return "", "", ErrInvalidRefreshToken
	}
	delete(s.tokens, hash)
	newToken, err := generateRefreshToken()
	if err != nil {
		return "", "", err
	}
	s.tokens[refreshTokenHash(newToken)] = memoryRefreshEntry{
		userID: entry.userID,
		expiry: time.Now().UTC().Add(ttl),
	}
	return entry.userID, newToken, nil
}

// DeleteToken revokes a token.
func (s *MemoryRefreshTokenStore) DeleteToken(token string) error {
	s.mu.Lock()
	delete(s.tokens, refreshTokenHash(token))
	s.mu.Unlock()
	return nil
}

// RevokeUserTokens revokes all refresh tokens issued to a user.
func (s *MemoryRefreshTokenStore) RevokeUserTokens(userID string) error {
	s.mu.Lock()
	for hash, entry := range s.tokens {
		if entry.userID == userID {
			delete(s.tokens, hash)
		}
	}
	s.mu.Unlock()
	return nil
}

// RedisRefreshTokenStore stores refresh tokens in Redis with TTL.
type RedisRefreshTokenStore struct {
	client *redis.Client
}

// NewRedisRefreshTokenStore builds a Redis-backed refresh token store.
func NewRedisRefreshTokenStore(addr, password string) *RedisRefreshTokenStore {
	return &RedisRefreshTokenStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

// NewToken issues and stores a refresh token for the user.
func (s *RedisRefreshTokenStore) NewToken(userID string, ttl time.Duration) (string, error) {
	token, err := generateRefreshToken()
	if err != nil {
		return "", err
	}
	hash := refreshTokenHash(token)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, refreshTokenRedisKey(hash), userID, ttl)
	pipe.SAdd(ctx, refreshUserRedisKey(userID), hash)
	pipe.Expire(ctx, refreshUserRedisKey(userID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return token, nil
}

// RotateToken invalidates the presented token and issues a replacement.
func (s *RedisRefreshTokenStore) RotateToken(token string, ttl time.Duration) (string, string, error) {
	hash := refreshTokenHash(token)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	userID, err := s.client.GetDel(ctx, refreshTokenRedisKey(hash)).Result()
	if err == redis.Nil {
		return "", "", ErrInvalidRefreshToken
	}
	if err != nil {
		return "", "", err
	}
	_ = s.client.SRem(ctx, refreshUserRedisKey(userID), hash).Err()

	newToken, err := generateRefreshToken()
	if err != nil {
		return "", "", err
	}
	newHash := refreshTokenHash(newToken)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, refreshTokenRedisKey(newHash), userID, ttl)
	pipe.SAdd(ctx, refreshUserRedisKey(userID), newHash)
	pipe.Expire(ctx, refreshUserRedisKey(userID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", "", err
	}
	return userID, newToken, nil
}

// DeleteToken revokes a token.
func (s *RedisRefreshTokenStore) DeleteToken(token string) error {
	hash := refreshTokenHash(token)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	userID, err := s.client.GetDel(ctx, refreshTokenRedisKey(hash)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.client.SRem(ctx, refreshUserRedisKey(userID), hash).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// RevokeUserTokens revokes all refresh tokens issued to a user.
func (s *RedisRefreshTokenStore) RevokeUserTokens(userID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	hashes, err := s.client.SMembers(ctx, refreshUserRedisKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	pipe := s.client.TxPipeline()
	for _, hash := range hashes {
		pipe.Del(ctx, refreshTokenRedisKey(hash))
	}
	pipe.Del(ctx, refreshUserRedisKey(userID))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

func generateRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func refreshTokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func refreshTokenRedisKey(hash string) string {
	return "thinkora:refresh:token:" + hash
}

func refreshUserRedisKey(userID string) string {
	return "thinkora:refresh:user:" + userID
}
