// Package app wires storage, tokens, and the chat/GPA logic into the
// application service used by the HTTP layer.
package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"thinkora/internal/knowledge"
	"thinkora/internal/usertoken"
	"thinkora/pkg/auth"
	"thinkora/pkg/domain"
	"thinkora/pkg/store"
)

const (
	defaultRefreshTTL   = 7 * 24 * time.Hour
	defaultHistoryLimit = 50
	defaultChatContext  = "student"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RefreshTTL    time.Duration
	HistoryLimit  int
	Tokens        *usertoken.Manager
	Store         store.Store
	RefreshTokens store.RefreshTokenStore
}

// App is the core application service.
type App struct {
	store         store.Store
	tokens        *usertoken.Manager
	refreshTokens store.RefreshTokenStore
	refreshTTL    time.Duration
	resolver      *knowledge.Resolver
	historyLimit  int
}

// New constructs the application with database storage and token management.
func New(cfg Config) (*App, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token manager required")
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	refreshStore := cfg.RefreshTokens
	if refreshStore == nil {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redisAddr is required for the refresh token store")
		}
		refreshStore = store.NewRedisRefreshTokenStore(cfg.RedisAddr, cfg.RedisPassword)
	}

	return &App{
		store:         dataStore,
		tokens:        cfg.Tokens,
		refreshTokens: refreshStore,
		refreshTTL:    cfg.RefreshTTL,
		resolver:      knowledge.NewResolver(dataStore),
		historyLimit:  cfg.HistoryLimit,
	}, nil
}

// Register creates a regular account.
func (a *App) Register(email, username, password string) (domain.User, error) {
	return a.createAccount(email, username, password, domain.RoleUser)
}

// CreateSuperuser creates an admin account.
func (a *App) CreateSuperuser(email, username, password string) (domain.User, error) {
	return a.createAccount(email, username, password, domain.RoleAdmin)
}

func (a *App) createAccount(email, username, password string, role domain.UserRole) (domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	username = strings.TrimSpace(username)
	if email == "" || username == "" || password == "" {
		return domain.User{}, ErrRegistrationFieldsRequired
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, err
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, ErrEmailAlreadyRegistered
	}
	exists, err = a.store.HasUsername(username)
	if err != nil {
		return domain.User{}, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return domain.User{}, ErrUsernameTaken
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           store.NewID(),
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// Login validates credentials and issues access + refresh tokens.
func (a *App) Login(email, password string) (domain.User, string, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || user.PasswordHash == "" {
		return domain.User{}, "", "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", "", ErrInvalidCredentials
	}
	return a.issueTokens(user)
}

// Refresh rotates the refresh token and issues a new access token.
func (a *App) Refresh(refreshToken string) (domain.User, string, string, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return domain.User{}, "", "", ErrRefreshTokenRequired
	}
	userID, newRefresh, err := a.refreshTokens.RotateToken(refreshToken, a.refreshTTL)
	if err != nil {
		return domain.User{}, "", "", err
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, "", "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, "", "", store.ErrInvalidRefreshToken
	}
	access, err := a.tokens.Sign(user.ID)
	if err != nil {
		return domain.User{}, "", "", fmt.Errorf("sign access token: %w", err)
	}
	return user, access, newRefresh, nil
}

// Logout revokes a refresh token.
func (a *App) Logout(refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return ErrRefreshTokenRequired
	}
	return a.refreshTokens.DeleteToken(refreshToken)
}

// GetUser resolves a user by ID.
func (a *App) GetUser(id string) (domain.User, bool, error) {
	return a.store.GetUserByID(id)
}

func (a *App) issueTokens(user domain.User) (domain.User, string, string, error) {
	access, err := a.tokens.Sign(user.ID)
	if err != nil {
		return domain.User{}, "", "", fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := a.refreshTokens.NewToken(user.ID, a.refreshTTL)
	if err != nil {
		return domain.User{}, "", "", fmt.Errorf("issue refresh token: %w", err)
	}
	return user, access, refresh, nil
}

// resolveGuest finds or creates the guest account bound to a session id.
func (a *App) resolveGuest(sessionID string) (domain.User, error) {
	username := store.GuestUsername(sessionID)
	user, ok, err := a.store.GetUserByUsername(username)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch guest: %w", err)
	}
	if ok {
		return user, nil
	}
	now := time.Now().UTC()
	user = domain.User{
		ID:        store.NewID(),
		Email:     store.GuestEmail(sessionID),
		Username:  username,
		Role:      domain.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save guest: %w", err)
	}
	return user, nil
}

// NewSessionID generates an opaque conversation identifier.
func NewSessionID() string {
	return uuid.NewString()
}
