package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"halligan-rms/config"
	"halligan-rms/core/auth"
	"halligan-rms/core/incidents"
	"halligan-rms/core/rbac"
	"halligan-rms/core/store"
	"halligan-rms/core/workbook"
)

type memUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*store.User
}

func newMemUsers() *memUsers {
	return &memUsers{nextID: 1, byID: map[int64]*store.User{}}
}

func (m *memUsers) Create(ctx context.Context, u *store.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = m.nextID
	m.nextID++
	cp := *u
	m.byID[u.ID] = &cp
	return u.ID, nil
}

func (m *memUsers) Update(ctx context.Context, u *store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[u.ID]; !ok {
		return store.ErrConflict
	}
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUsers) Get(ctx context.Context, id int64) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *memUsers) FindByUsername(ctx context.Context, username string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Username == strings.ToLower(strings.TrimSpace(username)) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memUsers) List(ctx context.Context) ([]store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.User
	for _, u := range m.byID {
		out = append(out, *u)
	}
	return out, nil
}

func (m *memUsers) SetActive(ctx context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return store.ErrConflict
	}
	u.Active = active
	return nil
}

func (m *memUsers) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID), nil
}

type memSessions struct {
	mu   sync.Mutex
	byID map[string]*store.SessionRecord
}

func newMemSessions() *memSessions {
	return &memSessions{byID: map[string]*store.SessionRecord{}}
}

func (m *memSessions) SaveSession(ctx context.Context, sr *store.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sr
	m.byID[sr.ID] = &cp
	return nil
}

func (m *memSessions) GetSession(ctx context.Context, id string) (*store.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sr, ok := m.byID[id]
	if !ok || time.Now().UTC().After(sr.ExpiresAt) {
		return nil, nil
	}
	cp := *sr
	return &cp, nil
}

func (m *memSessions) DeleteSession(ctx context.Context, id, revokedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

func (m *memSessions) UpdateActivity(ctx context.Context, id string, now time.Time, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sr, ok := m.byID[id]; ok {
		sr.LastSeenAt = now
		sr.ExpiresAt = now.Add(ttl)
	}
	return nil
}

func (m *memSessions) RevokeAllForUser(ctx context.Context, userID int64, revokedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sr := range m.byID {
		if sr.UserID == userID {
			delete(m.byID, id)
		}
	}
	return nil
}

func (m *memSessions) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []store.AuditEntry
}

func (m *memAudit) Append(ctx context.Context, e *store.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memAudit) List(ctx context.Context, limit int) ([]store.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.AuditEntry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

type testEnv struct {
	server *Server
	users  *memUsers
	cfg    *config.AppConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.AppConfig{
		Pepper:     "test-pepper",
		SessionTTL: time.Hour,
		Security:   config.SecurityConfig{LoginBurst: 100},
	}
	users := newMemUsers()
	sessions := newMemSessions()
	audits := &memAudit{}
	policy := rbac.MustNewPolicy()

	wb := workbook.NewStore(filepath.Join(t.TempDir(), "wb.xlsx"), nil)
	wb.Init()

	deps := ServerDeps{
		Users:          users,
		Sessions:       sessions,
		Audits:         audits,
		Policy:         policy,
		SessionManager: auth.NewSessionManager(sessions, cfg, nil),
		IncidentsSvc:   incidents.NewService(cfg, wb, policy, audits, nil),
		Workbook:       wb,
	}
	return &testEnv{server: NewServer(cfg, deps, nil), users: users, cfg: cfg}
}

func (e *testEnv) addUser(t *testing.T, username, password, role string) *store.User {
	t.Helper()
	ph := auth.MustHashPassword(password, e.cfg.Pepper)
	u := &store.User{
		Username:     username,
		PasswordHash: ph.Hash,
		Salt:         ph.Salt,
		PasswordSet:  true,
		Role:         role,
		Active:       true,
	}
	if _, err := e.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

type client struct {
	session *http.Cookie
	csrfTok string
}

func (e *testEnv) login(t *testing.T, username, password string) *client {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, w.Code, w.Body.String())
	}
	c := &client{}
	for _, ck := range w.Result().Cookies() {
		if ck.Name == "halligan_session" {
			c.session = ck
		}
		if ck.Name == "halligan_csrf" {
			c.csrfTok = ck.Value
		}
	}
	if c.session == nil || c.csrfTok == "" {
		t.Fatalf("login did not set session and csrf cookies")
	}
	return c
}

func (e *testEnv) do(c *client, method, path string, payload any) *httptest.ResponseRecorder {
	var body *bytes.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	if c != nil {
		req.AddCookie(c.session)
		req.AddCookie(&http.Cookie{Name: "halligan_csrf", Value: c.csrfTok})
		req.Header.Set("X-CSRF-Token", c.csrfTok)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/api/incidents", "/api/audit", "/api/lookups"} {
		w := e.do(nil, http.MethodGet, path, nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without session: status %d", path, w.Code)
		}
	}
}

func TestLoginBadCredentials(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "probie", "hydrant-42", rbac.RoleMember)
	body, _ := json.Marshal(map[string]string{"username": "probie", "password": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: status %d", w.Code)
	}
}

func TestCSRFRequiredOnMutations(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "probie", "hydrant-42", rbac.RoleMember)
	c := e.login(t, "probie", "hydrant-42")

	raw, _ := json.Marshal(map[string]any{"IncidentNumber": "2024-001"})
	req := httptest.NewRequest(http.MethodPost, "/api/incidents", bytes.NewReader(raw))
	req.AddCookie(c.session)
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("mutation without CSRF token: status %d", w.Code)
	}
}

func TestIncidentLifecycleOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "probie", "hydrant-42", rbac.RoleMember)
	e.addUser(t, "captain", "ladder-secret", rbac.RoleReviewer)
	member := e.login(t, "probie", "hydrant-42")
	reviewer := e.login(t, "captain", "ladder-secret")

	w := e.do(member, http.MethodPost, "/api/incidents", map[string]any{
		"IncidentNumber": "2024-100",
		"IncidentType":   "Structure Fire",
		"IncidentDate":   "2024-06-01",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("save draft: status %d body %s", w.Code, w.Body.String())
	}

	w = e.do(member, http.MethodPost, "/api/incidents/2024-100/submit", map[string]any{})
	if w.Code != http.StatusOK {
		t.Fatalf("submit: status %d body %s", w.Code, w.Body.String())
	}

	// A member cannot approve.
	w = e.do(member, http.MethodPost, "/api/incidents/2024-100/approve", map[string]any{"comments": "self-approve"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("member approve: status %d", w.Code)
	}

	w = e.do(reviewer, http.MethodPost, "/api/incidents/2024-100/approve", map[string]any{"comments": "ok"})
	if w.Code != http.StatusOK {
		t.Fatalf("approve: status %d body %s", w.Code, w.Body.String())
	}
	var rec map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["Status"] != "Approved" {
		t.Fatalf("Status = %v", rec["Status"])
	}

	// Approving twice conflicts.
	w = e.do(reviewer, http.MethodPost, "/api/incidents/2024-100/approve", map[string]any{"comments": "again"})
	if w.Code != http.StatusConflict {
		t.Fatalf("double approve: status %d", w.Code)
	}
}

func TestAuditEndpointGuarded(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "probie", "hydrant-42", rbac.RoleMember)
	e.addUser(t, "chief", "command-1", rbac.RoleAdmin)
	member := e.login(t, "probie", "hydrant-42")
	admin := e.login(t, "chief", "command-1")

	if w := e.do(member, http.MethodGet, "/api/audit", nil); w.Code != http.StatusForbidden {
		t.Fatalf("member audit access: status %d", w.Code)
	}
	if w := e.do(admin, http.MethodGet, "/api/audit", nil); w.Code != http.StatusOK {
		t.Fatalf("admin audit access: status %d", w.Code)
	}
}

func TestAccountsEndpointGuarded(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "captain", "ladder-secret", rbac.RoleReviewer)
	e.addUser(t, "chief", "command-1", rbac.RoleAdmin)
	reviewer := e.login(t, "captain", "ladder-secret")
	admin := e.login(t, "chief", "command-1")

	if w := e.do(reviewer, http.MethodGet, "/api/accounts", nil); w.Code != http.StatusForbidden {
		t.Fatalf("reviewer accounts access: status %d", w.Code)
	}
	w := e.do(admin, http.MethodPost, "/api/accounts", map[string]any{
		"username": "newhand", "password": "long-enough-pw", "role": "member",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("account create: status %d body %s", w.Code, w.Body.String())
	}
}

func TestHealthIsOpen(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(nil, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health: status %d", w.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	srvCfg := &config.AppConfig{Pepper: "p", Security: config.SecurityConfig{LoginBurst: 2}}
	users := newMemUsers()
	sessions := newMemSessions()
	policy := rbac.MustNewPolicy()
	wb := workbook.NewStore(filepath.Join(t.TempDir(), "wb.xlsx"), nil)
	wb.Init()
	srv := NewServer(srvCfg, ServerDeps{
		Users:          users,
		Sessions:       sessions,
		Audits:         &memAudit{},
		Policy:         policy,
		SessionManager: auth.NewSessionManager(sessions, srvCfg, nil),
		IncidentsSvc:   incidents.NewService(srvCfg, wb, policy, nil, nil),
		Workbook:       wb,
	}, nil)

	body := []byte(`{"username":"nobody","password":"x"}`)
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
		req.RemoteAddr = "203.0.113.9:1234"
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusUnauthorized || codes[1] != http.StatusUnauthorized {
		t.Fatalf("first attempts should reach the handler: %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("third attempt should be throttled: %v", codes)
	}
}
