package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"thinkora/internal/app"
	"thinkora/internal/usertoken"
	"thinkora/pkg/store"
)

func newTestServer(t *testing.T, override func(*Config)) *httptest.Server {
	t.Helper()
	tokens, err := usertoken.NewManager(usertoken.Options{Secret: "test-secret"})
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	a, err := app.New(app.Config{
		Store:         store.NewMemoryStore(),
		Tokens:        tokens,
		RefreshTokens: store.NewMemoryRefreshTokenStore(),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	redis := miniredis.RunT(t)
	cfg := Config{
		App:       a,
		Tokens:    tokens,
		RedisAddr: redis.Addr(),
	}
	if override != nil {
		override(&cfg)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	return doJSON(t, http.MethodPost, url, body, headers)
}

func getJSON(t *testing.T, url string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	return doJSON(t, http.MethodGet, url, "", headers)
}

func doJSON(t *testing.T, method, url, body string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	payload := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			// some endpoints return arrays; keep raw for the caller
			payload = map[string]any{"_raw": string(raw)}
		}
	}
	return resp.StatusCode, payload
}

func registerAndLogin(t *testing.T, base, email, username string) string {
	t.Helper()
	status, _ := postJSON(t, base+"/register/",
		`{"email":"`+email+`","username":"`+username+`","password":"long enough password"}`, nil)
	if status != http.StatusCreated {
		t.Fatalf("register status = %d", status)
	}
	status, body := postJSON(t, base+"/token/",
		`{"email":"`+email+`","password":"long enough password"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("login status = %d", status)
	}
	access, _ := body["access"].(string)
	if access == "" {
		t.Fatalf("login response missing access token: %v", body)
	}
	return access
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	status, body := getJSON(t, srv.URL+"/health/", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body["status"] != "ok" || body["service"] != "Thinkora Backend" {
		t.Fatalf("body = %v", body)
	}
}

func TestRegisterLoginAndProtectedRoute(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := postJSON(t, srv.URL+"/register/",
		`{"email":"a@example.com","username":"alice","password":"long enough password"}`, nil)
	if status != http.StatusCreated {
		t.Fatalf("register status = %d: %v", status, body)
	}
	if body["success"] != true || body["message"] != "Registration successful!" {
		t.Fatalf("register body = %v", body)
	}

	status, _ = getJSON(t, srv.URL+"/test/", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("unauthenticated probe status = %d", status)
	}

	status, body = postJSON(t, srv.URL+"/token/",
		`{"email":"a@example.com","password":"long enough password"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("login status = %d", status)
	}
	access, _ := body["access"].(string)
	refresh, _ := body["refresh"].(string)
	if access == "" || refresh == "" {
		t.Fatalf("login body missing tokens: %v", body)
	}

	status, body = getJSON(t, srv.URL+"/test/", bearer(access))
	if status != http.StatusOK {
		t.Fatalf("probe status = %d", status)
	}
	if body["user_email"] != "a@example.com" || body["username"] != "alice" {
		t.Fatalf("probe body = %v", body)
	}

	status, body = postJSON(t, srv.URL+"/token/refresh/", `{"refresh":"`+refresh+`"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("refresh status = %d: %v", status, body)
	}
	if body["access"] == "" || body["refresh"] == refresh {
		t.Fatalf("refresh should rotate tokens: %v", body)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	srv := newTestServer(t, nil)
	status, _ := postJSON(t, srv.URL+"/register/",
		`{"email":"a@example.com","username":"alice","password":"short"}`, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
}

func TestCourseEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)
	access := registerAndLogin(t, srv.URL, "a@example.com", "alice")

	status, body := postJSON(t, srv.URL+"/courses/",
		`{"course_name":"Calculus","credits":3,"letter_grade":"a","semester_year":"2025/1"}`, bearer(access))
	if status != http.StatusCreated {
		t.Fatalf("create status = %d: %v", status, body)
	}
	if body["letter_grade"] != "A" {
		t.Fatalf("letter grade not normalized: %v", body)
	}
	courseID, _ := body["id"].(string)
	if courseID == "" {
		t.Fatalf("create response missing id")
	}

	status, body = getJSON(t, srv.URL+"/courses/", bearer(access))
	if status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	if raw, ok := body["_raw"].(string); !ok || !bytes.Contains([]byte(raw), []byte("Calculus")) {
		t.Fatalf("list should include the course: %v", body)
	}

	otherAccess := registerAndLogin(t, srv.URL, "b@example.com", "bob")
	status, _ = getJSON(t, srv.URL+"/courses/"+courseID+"/", bearer(otherAccess))
	if status != http.StatusForbidden {
		t.Fatalf("cross-user read status = %d", status)
	}

	status, _ = doJSON(t, http.MethodDelete, srv.URL+"/courses/"+courseID+"/", "", bearer(access))
	if status != http.StatusNoContent {
		t.Fatalf("delete status = %d", status)
	}
	status, _ = getJSON(t, srv.URL+"/courses/"+courseID+"/", bearer(access))
	if status != http.StatusNotFound {
		t.Fatalf("deleted course status = %d", status)
	}
}

func TestChatAndHistoryShapes(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := postJSON(t, srv.URL+"/chat/", `{"message":"When does the library open?"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("chat status = %d: %v", status, body)
	}
	if body["success"] != true {
		t.Fatalf("chat body = %v", body)
	}
	sessionID, _ := body["session_id"].(string)
	if sessionID == "" || body["reply"] == "" || body["timestamp"] == "" {
		t.Fatalf("chat body incomplete: %v", body)
	}

	status, body = getJSON(t, srv.URL+"/chat/history/?session_id="+sessionID, nil)
	if status != http.StatusOK {
		t.Fatalf("history status = %d", status)
	}
	history, ok := body["history"].([]any)
	if !ok || len(history) != 2 {
		t.Fatalf("history = %v", body["history"])
	}
	first, _ := history[0].(map[string]any)
	second, _ := history[1].(map[string]any)
	if first["sender"] != "user" || second["sender"] != "ai" {
		t.Fatalf("history order wrong: %v then %v", first["sender"], second["sender"])
	}
	if first["text"] != "When does the library open?" {
		t.Fatalf("history text = %v", first["text"])
	}
}

func TestChatHistoryWithoutPrincipal(t *testing.T) {
	srv := newTestServer(t, nil)
	status, body := getJSON(t, srv.URL+"/chat/history/", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	history, ok := body["history"].([]any)
	if !ok || len(history) != 0 {
		t.Fatalf("expected empty history, got %v", body["history"])
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	srv := newTestServer(t, nil)
	status, body := postJSON(t, srv.URL+"/chat/", `{"message":"   "}`, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
	if body["error"] != "Message empty" {
		t.Fatalf("body = %v", body)
	}
}

func TestChatRateLimit(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) {
		cfg.ChatRateLimitPerMinute = 1
	})
	status, _ := postJSON(t, srv.URL+"/chat/", `{"message":"first message here"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("first chat status = %d", status)
	}
	status, _ = postJSON(t, srv.URL+"/chat/", `{"message":"second message here"}`, nil)
	if status != http.StatusTooManyRequests {
		t.Fatalf("second chat status = %d, want 429", status)
	}
}

func TestCalculateGPA(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := postJSON(t, srv.URL+"/calculate-gpa/", `{"grades":["A","C"],"credits":[3,2]}`, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d: %v", status, body)
	}
	if body["success"] != true || body["gpa"] != 4.2 || body["classification"] != "Second Class Upper" {
		t.Fatalf("body = %v", body)
	}
	if body["total_credits"] != 5.0 || body["grades_count"] != 2.0 {
		t.Fatalf("totals = %v, %v", body["total_credits"], body["grades_count"])
	}

	status, body = postJSON(t, srv.URL+"/calculate-gpa/", `{"grades":["A"],"credits":[3,2]}`, nil)
	if status != http.StatusBadRequest || body["success"] != false {
		t.Fatalf("mismatched input: %d %v", status, body)
	}

	status, body = postJSON(t, srv.URL+"/calculate-gpa/", `{"grades":["X"],"credits":[3]}`, nil)
	if status != http.StatusBadRequest || body["error"] != "No valid grades provided" {
		t.Fatalf("unrecognized grades: %d %v", status, body)
	}
}

func TestAdminKnowledgeCuration(t *testing.T) {
	srv := newTestServer(t, nil)

	// learn a question
	status, _ := postJSON(t, srv.URL+"/chat/", `{"message":"What cafeterias are open late?"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("chat status = %d", status)
	}

	userAccess := registerAndLogin(t, srv.URL, "u@example.com", "plainuser")
	status, _ = getJSON(t, srv.URL+"/admin/knowledge/", bearer(userAccess))
	if status != http.StatusForbidden {
		t.Fatalf("non-admin list status = %d", status)
	}

	status, body := postJSON(t, srv.URL+"/create-superuser/",
		`{"email":"root@example.com","username":"root","password":"long enough password"}`, nil)
	if status != http.StatusOK || body["success"] != true {
		t.Fatalf("create superuser: %d %v", status, body)
	}
	status, body = postJSON(t, srv.URL+"/token/",
		`{"email":"root@example.com","password":"long enough password"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("admin login status = %d", status)
	}
	adminAccess, _ := body["access"].(string)

	status, body = getJSON(t, srv.URL+"/admin/knowledge/", bearer(adminAccess))
	if status != http.StatusOK {
		t.Fatalf("admin list status = %d", status)
	}
	items, ok := body["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("items = %v", body["items"])
	}
	entry, _ := items[0].(map[string]any)
	entryID, _ := entry["id"].(string)
	if entryID == "" || entry["answer"] != "Pending Answer" {
		t.Fatalf("entry = %v", entry)
	}

	status, body = doJSON(t, http.MethodPatch, srv.URL+"/admin/knowledge/"+entryID+"/",
		`{"answer":"Main hall until 10pm","is_verified":true}`, bearer(adminAccess))
	if status != http.StatusOK {
		t.Fatalf("curate status = %d: %v", status, body)
	}
	if body["is_verified"] != true {
		t.Fatalf("curated entry = %v", body)
	}

	status, body = postJSON(t, srv.URL+"/chat/", `{"message":"What cafeterias are open late?"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("chat status = %d", status)
	}
	if body["reply"] != "Main hall until 10pm" {
		t.Fatalf("curated answer not served: %v", body["reply"])
	}
}

func TestCreateSuperuserDuplicateEmail(t *testing.T) {
	srv := newTestServer(t, nil)
	body := `{"email":"root@example.com","username":"root","password":"long enough password"}`
	if status, _ := postJSON(t, srv.URL+"/create-superuser/", body, nil); status != http.StatusOK {
		t.Fatalf("first create status = %d", status)
	}
	status, resp := postJSON(t, srv.URL+"/create-superuser/",
		`{"email":"root@example.com","username":"other","password":"long enough password"}`, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("duplicate status = %d", status)
	}
	if resp["error"] != "User with this email already exists." {
		t.Fatalf("body = %v", resp)
	}
}

func TestSuperuserCreationKeyGate(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) {
		cfg.SuperuserCreationKey = "setup-key"
	})
	body := `{"email":"root@example.com","username":"root","password":"long enough password"}`
	if status, _ := postJSON(t, srv.URL+"/create-superuser/", body, nil); status != http.StatusForbidden {
		t.Fatalf("missing key status = %d", status)
	}
	status, _ := postJSON(t, srv.URL+"/create-superuser/", body, map[string]string{"X-Setup-Key": "setup-key"})
	if status != http.StatusOK {
		t.Fatalf("keyed create status = %d", status)
	}
}
