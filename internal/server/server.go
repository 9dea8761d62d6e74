package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"thinkora/internal/app"
	"thinkora/internal/gpa"
	"thinkora/internal/ratelimit"
	"thinkora/internal/usertoken"
	"thinkora/internal/util"
	"thinkora/pkg/auth"
	"thinkora/pkg/domain"
	"thinkora/pkg/store"
)

const (
	serviceName    = "Thinkora Backend"
	serviceVersion = "1.0"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	Tokens        *usertoken.Manager
	RedisAddr     string
	RedisPassword string

	RegisterRateLimitPerMinute int
	LoginRateLimitPerMinute    int
	RefreshRateLimitPerMinute  int
	ChatRateLimitPerMinute     int

	// SuperuserCreationKey, when set, gates the bootstrap endpoint behind an
	// X-Setup-Key header.
	SuperuserCreationKey string

	TrustedProxies *util.TrustedProxies
}

// Server exposes the HTTP API.
type Server struct {
	app             *app.App
	tokens          *usertoken.Manager
	mux             *http.ServeMux
	superuserKey    string
	trusted         *util.TrustedProxies
	registerLimiter *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
	refreshLimiter  *ratelimit.FixedWindowLimiter
	chatLimiter     *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	registerLimit := cfg.RegisterRateLimitPerMinute
	if registerLimit <= 0 {
		registerLimit = 5
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	refreshLimit := cfg.RefreshRateLimitPerMinute
	if refreshLimit <= 0 {
		refreshLimit = 20
	}
	chatLimit := cfg.ChatRateLimitPerMinute
	if chatLimit <= 0 {
		chatLimit = 30
	}
	rateWindow := time.Minute
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		prefix := "thinkora:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, rateWindow)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	registerLimiter, err := newLimiter("register", registerLimit)
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter("login", loginLimit)
	if err != nil {
		return nil, err
	}
	refreshLimiter, err := newLimiter("refresh", refreshLimit)
	if err != nil {
		return nil, err
	}
	chatLimiter, err := newLimiter("chat", chatLimit)
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:             cfg.App,
		tokens:          cfg.Tokens,
		mux:             http.NewServeMux(),
		superuserKey:    cfg.SuperuserCreationKey,
		trusted:         cfg.TrustedProxies,
		registerLimiter: registerLimiter,
		loginLimiter:    loginLimiter,
		refreshLimiter:  refreshLimiter,
		chatLimiter:     chatLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health/", s.handleHealth)

	// accounts
	s.mux.HandleFunc("/register/", s.handleRegister)
	s.mux.HandleFunc("/token/", s.handleLogin)
	s.mux.HandleFunc("/token/refresh/", s.handleRefresh)
	s.mux.Handle("/logout/", s.authenticated(s.handleLogout))
	s.mux.Handle("/test/", s.authenticated(s.handleProtectedTest))
	s.mux.HandleFunc("/create-superuser/", s.handleCreateSuperuser)

	// courses
	s.mux.Handle("/courses/", s.authenticated(s.handleCourses))

	// chat + calculator
	s.mux.HandleFunc("/chat/", s.handleChat)
	s.mux.HandleFunc("/chat/history/", s.handleChatHistory)
	s.mux.HandleFunc("/calculate-gpa/", s.handleCalculateGPA)

	// admin
	s.mux.Handle("/admin/knowledge/", s.adminOnly(s.handleAdminKnowledge))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   serviceName,
		"version":   serviceVersion,
		"endpoints": []string{"/chat/", "/chat/history/", "/calculate-gpa/"},
	})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if user.Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.User{}, false
	}
	userID, err := s.tokens.VerifySubject(token)
	if err != nil {
		return domain.User{}, false
	}
	user, found, err := s.app.GetUser(userID)
	if err != nil || !found {
		return domain.User{}, false
	}
	return user, true
}

// optionalUser resolves the bearer principal when present; chat routes also
// serve anonymous sessions.
func (s *Server) optionalUser(r *http.Request) *domain.User {
	if user, ok := s.authorize(r); ok {
		return &user
	}
	return nil
}

// account handlers
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.registerLimiter, "too many registration attempts") {
		return
	}
	var req registerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.app.Register(req.Email, req.Username, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Registration successful!",
		"user": map[string]string{
			"username": user.Username,
			"email":    user.Email,
		},
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, access, refresh, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Access: access, Refresh: refresh, User: user})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.refreshLimiter, "too many refresh attempts") {
		return
	}
	var req refreshRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, access, refresh, err := s.app.Refresh(req.Refresh)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Access: access, Refresh: refresh, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req refreshRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.Logout(req.Refresh); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProtectedTest(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":    "Protected route accessed!",
		"user_email": user.Email,
		"username":   user.Username,
	})
}

func (s *Server) handleCreateSuperuser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.superuserKey != "" && r.Header.Get("X-Setup-Key") != s.superuserKey {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req registerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.app.CreateSuperuser(req.Email, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, app.ErrEmailAlreadyRegistered) {
			writeError(w, http.StatusBadRequest, "User with this email already exists.")
			return
		}
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "email": user.Email})
}

// course handlers
func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/courses/")
	if rest == "" {
		s.handleCourseCollection(w, r, user)
		return
	}
	id := strings.TrimSuffix(rest, "/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	s.handleCourseByID(w, r, user, id)
}

func (s *Server) handleCourseCollection(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		courses, err := s.app.ListCourses(user)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, courses)
	case http.MethodPost:
		in, ok := decodeCourseInput(w, r)
		if !ok {
			return
		}
		course, err := s.app.CreateCourse(user, in)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, course)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCourseByID(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	switch r.Method {
	case http.MethodGet:
		course, err := s.app.GetCourse(user, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, course)
	case http.MethodPut:
		in, ok := decodeCourseInput(w, r)
		if !ok {
			return
		}
		course, err := s.app.UpdateCourse(user, id, in)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, course)
	case http.MethodDelete:
		if err := s.app.DeleteCourse(user, id); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func decodeCourseInput(w http.ResponseWriter, r *http.Request) (app.CourseInput, bool) {
	var in app.CourseInput
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return app.CourseInput{}, false
	}
	return in, true
}

// chat handlers
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.chatLimiter, "too many chat messages") {
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := s.app.ChatTurn(s.optionalUser(r), req.SessionID, req.Message, req.Context)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"reply":      res.Reply,
		"session_id": res.SessionID,
		"message_id": res.MessageID,
		"timestamp":  res.Timestamp.Format(time.RFC3339Nano),
	})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	messages, err := s.app.History(s.optionalUser(r), r.URL.Query().Get("session_id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	history := make([]historyItem, 0, len(messages))
	for _, msg := range messages {
		history = append(history, historyItem{
			ID:      msg.ID,
			Sender:  string(msg.Role),
			Text:    msg.Content,
			Time:    msg.CreatedAt.Format(time.RFC3339Nano),
			Context: msg.Context,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "history": history})
}

// calculator handler
func (s *Server) handleCalculateGPA(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req gpaRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Grades) == 0 || len(req.Credits) == 0 || len(req.Grades) != len(req.Credits) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   `Send grades=["A","B"] and credits=[3,4]`,
		})
		return
	}
	res, err := gpa.Compute(req.Grades, req.Credits)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "No valid grades provided",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"gpa":            res.GPA,
		"total_credits":  res.TotalCredits,
		"total_points":   res.TotalPoints,
		"scale":          gpa.Scale,
		"classification": res.Classification,
		"grades_count":   len(req.Grades),
	})
}

// admin handlers
func (s *Server) handleAdminKnowledge(w http.ResponseWriter, r *http.Request, _ domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/admin/knowledge/")
	if rest == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		verifiedOnly := r.URL.Query().Get("verified") == "true"
		entries, err := s.app.ListKnowledge(verifiedOnly)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": entries,
			"count": len(entries),
		})
		return
	}
	id := strings.TrimSuffix(rest, "/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	var req curateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Answer) == "" {
		writeError(w, http.StatusBadRequest, "answer is required")
		return
	}
	entry, err := s.app.CurateKnowledge(id, req.Answer, req.IsVerified)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trusted)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type tokenResponse struct {
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
	User    domain.User `json:"user"`
}

type chatRequest struct {
	Message   string `json:"message"`
	Context   string `json:"context"`
	SessionID string `json:"session_id"`
}

type historyItem struct {
	ID      string `json:"id"`
	Sender  string `json:"sender"`
	Text    string `json:"text"`
	Time    string `json:"time"`
	Context string `json:"context"`
}

type gpaRequest struct {
	Grades  []string  `json:"grades"`
	Credits []float64 `json:"credits"`
}

type curateRequest struct {
	Answer     string `json:"answer"`
	IsVerified bool   `json:"is_verified"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

// writeAppError maps application errors onto HTTP statuses.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidCredentials),
		errors.Is(err, store.ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrCourseNotFound),
		errors.Is(err, app.ErrKnowledgeNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case isBadInput(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func isBadInput(err error) bool {
	for _, known := range []error{
		app.ErrRegistrationFieldsRequired,
		app.ErrEmailAlreadyRegistered,
		app.ErrUsernameTaken,
		app.ErrRefreshTokenRequired,
		app.ErrEmptyMessage,
		app.ErrCourseFieldsRequired,
		auth.ErrPasswordTooShort,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return errors.Is(err, gpa.ErrInvalidInput)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
