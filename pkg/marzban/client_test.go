package marzban

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"marzban-tg-admin/internal/config"
	apperrors "marzban-tg-admin/internal/errors"
	"marzban-tg-admin/internal/models"
)

// fakePanel is a minimal Marzban API used by the client tests
type fakePanel struct {
	mux        *http.ServeMux
	tokenCalls int32
	lastBody   map[string]interface{}
}

func newFakePanel(t *testing.T) (*fakePanel, *httptest.Server) {
	t.Helper()

	p := &fakePanel{mux: http.NewServeMux()}
	p.mux.HandleFunc("/api/admin/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&p.tokenCalls, 1)
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" || r.PostForm.Get("username") != "admin" || r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Incorrect username or password"}`))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "tok-1", "token_type": "bearer"})
	})

	srv := httptest.NewServer(p.authorized(p.mux))
	t.Cleanup(srv.Close)
	return p, srv
}

// authorized rejects API calls without the bearer token
func (p *fakePanel) authorized(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/admin/token" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Body != nil && r.ContentLength > 0 {
			var body map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				p.lastBody = body
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()

	logger, _ := test.NewNullLogger()
	c, err := NewClient(context.Background(), config.MarzbanConfig{
		URL:      srv.URL,
		Username: "admin",
		Password: "secret",
	}, logger)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient_ObtainsToken(t *testing.T) {
	p, srv := newFakePanel(t)
	c := newTestClient(t, srv)

	if got := c.Token(); got != "tok-1" {
		t.Fatalf("expected token tok-1, got %q", got)
	}
	if n := atomic.LoadInt32(&p.tokenCalls); n != 1 {
		t.Fatalf("expected 1 token request, got %d", n)
	}
}

func TestNewClient_BadCredentials(t *testing.T) {
	_, srv := newFakePanel(t)

	logger, _ := test.NewNullLogger()
	_, err := NewClient(context.Background(), config.MarzbanConfig{
		URL:      srv.URL,
		Username: "admin",
		Password: "wrong",
	}, logger)

	var connErr *apperrors.ConnectivityError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectivityError, got %v", err)
	}
	var apiErr *apperrors.PanelAPIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected wrapped 401 PanelAPIError, got %v", err)
	}
}

func TestNewClient_EmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"access_token": ""})
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	_, err := NewClient(context.Background(), config.MarzbanConfig{URL: srv.URL, Username: "a", Password: "b"}, logger)

	var connErr *apperrors.ConnectivityError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectivityError, got %v", err)
	}
}

func TestNewClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	logger, _ := test.NewNullLogger()
	_, err := NewClient(context.Background(), config.MarzbanConfig{URL: url, Username: "a", Password: "b"}, logger)

	var connErr *apperrors.ConnectivityError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectivityError, got %v", err)
	}
}

func TestGetUser(t *testing.T) {
	p, srv := newFakePanel(t)
	p.mux.HandleFunc("/api/user/alice", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"username":         "alice",
			"status":           "active",
			"data_limit":       1073741824,
			"used_traffic":     512,
			"expire":           nil,
			"subscription_url": "https://panel/sub/alice",
		})
	})
	p.mux.HandleFunc("/api/user/ghost", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "User not found"})
	})
	c := newTestClient(t, srv)
	ctx := context.Background()

	user, err := c.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user == nil || user.Username != "alice" || user.Status != models.PanelUserActive {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.DataLimit == nil || *user.DataLimit != 1073741824 {
		t.Fatalf("unexpected data limit %v", user.DataLimit)
	}
	if user.Expire != nil {
		t.Fatalf("expected no expiry, got %v", *user.Expire)
	}

	missing, err := c.GetUser(ctx, "ghost")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for unknown user, got (%v, %v)", missing, err)
	}
}

func TestGetUser_ServerError(t *testing.T) {
	p, srv := newFakePanel(t)
	p.mux.HandleFunc("/api/user/alice", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})
	c := newTestClient(t, srv)

	_, err := c.GetUser(context.Background(), "alice")

	var apiErr *apperrors.PanelAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected PanelAPIError, got %v", err)
	}
	if apiErr.Status != http.StatusInternalServerError || apiErr.Body != "boom" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if IsNotFound(err) {
		t.Fatal("500 must not be reported as not found")
	}
}

func TestCreateUser_MergesDefaults(t *testing.T) {
	p, srv := newFakePanel(t)
	p.mux.HandleFunc("/api/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"username": p.lastBody["username"], "status": "active"})
	})
	c := newTestClient(t, srv)

	user, err := c.CreateUser(context.Background(), map[string]interface{}{
		"username":   "bob",
		"data_limit": 5,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Username != "bob" {
		t.Fatalf("expected bob, got %q", user.Username)
	}

	if got := p.lastBody["data_limit"]; got != float64(5) {
		t.Errorf("expected overridden data_limit 5, got %v", got)
	}
	if got := p.lastBody["data_limit_reset_strategy"]; got != "no_reset" {
		t.Errorf("expected default reset strategy, got %v", got)
	}
	if got := p.lastBody["status"]; got != "active" {
		t.Errorf("expected default status active, got %v", got)
	}
	if _, ok := p.lastBody["proxies"].(map[string]interface{}); !ok {
		t.Errorf("expected default proxies, got %v", p.lastBody["proxies"])
	}
}

func TestCreateUser_RequiresUsername(t *testing.T) {
	_, srv := newFakePanel(t)
	c := newTestClient(t, srv)

	_, err := c.CreateUser(context.Background(), map[string]interface{}{"data_limit": 1})

	var vErr *apperrors.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	p, srv := newFakePanel(t)
	p.mux.HandleFunc("/api/user/alice", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{})
	})
	c := newTestClient(t, srv)
	ctx := context.Background()

	if !c.DeleteUser(ctx, "alice") {
		t.Fatal("expected alice to be deleted")
	}
	if c.DeleteUser(ctx, "ghost") {
		t.Fatal("expected deleting an unknown user to fail")
	}
}

func TestListUsers_Params(t *testing.T) {
	p, srv := newFakePanel(t)
	var query string
	p.mux.HandleFunc("/api/users", func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"users": []map[string]interface{}{{"username": "a"}, {"username": "b"}},
			"total": 7,
		})
	})
	c := newTestClient(t, srv)

	page, err := c.ListUsers(context.Background(), ListUsersParams{Status: models.PanelUserExpired, Offset: -3})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(page.Users) != 2 || page.Total != 7 {
		t.Fatalf("unexpected page %+v", page)
	}
	for _, want := range []string{"offset=0", "limit=100", "status=expired"} {
		if !strings.Contains(query, want) {
			t.Errorf("expected %q in query %q", want, query)
		}
	}
}

func TestGetNodes_BothShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bare array", `[{"id":1,"name":"de-1","status":"connected"},{"id":2,"name":"nl-1","status":"error"}]`},
		{"wrapped", `{"nodes":[{"id":1,"name":"de-1","status":"connected"},{"id":2,"name":"nl-1","status":"error"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, srv := newFakePanel(t)
			p.mux.HandleFunc("/api/nodes", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			})
			c := newTestClient(t, srv)

			nodes, err := c.GetNodes(context.Background())
			if err != nil {
				t.Fatalf("GetNodes: %v", err)
			}
			if len(nodes) != 2 || nodes[0].Name != "de-1" || nodes[1].Status != "error" {
				t.Fatalf("unexpected nodes %+v", nodes)
			}
		})
	}
}

func TestUserActions(t *testing.T) {
	p, srv := newFakePanel(t)
	var calls []string
	record := func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]interface{}{"username": "alice", "used_traffic": 0})
	}
	p.mux.HandleFunc("/api/user/alice/reset_traffic", record)
	p.mux.HandleFunc("/api/user/alice/revoke_sub", record)
	p.mux.HandleFunc("/api/user/alice/usage", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"username": "alice",
			"usages":   []map[string]interface{}{{"node_id": nil, "node_name": "Master", "used_traffic": 42}},
		})
	})
	p.mux.HandleFunc("/api/system", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"version": "0.8.4", "total_user": 12, "users_active": 9})
	})
	c := newTestClient(t, srv)
	ctx := context.Background()

	if _, err := c.ResetUserTraffic(ctx, "alice"); err != nil {
		t.Fatalf("ResetUserTraffic: %v", err)
	}
	if _, err := c.RevokeUserSubscription(ctx, "alice"); err != nil {
		t.Fatalf("RevokeUserSubscription: %v", err)
	}
	want := []string{"POST /api/user/alice/reset_traffic", "POST /api/user/alice/revoke_sub"}
	if len(calls) != len(want) || calls[0] != want[0] || calls[1] != want[1] {
		t.Fatalf("expected calls %v, got %v", want, calls)
	}

	usage, err := c.GetUserUsage(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserUsage: %v", err)
	}
	if len(usage.Usages) != 1 || usage.Usages[0].NodeID != nil || usage.Usages[0].UsedTraffic != 42 {
		t.Fatalf("unexpected usage %+v", usage)
	}

	stats, err := c.GetSystemStats(ctx)
	if err != nil {
		t.Fatalf("GetSystemStats: %v", err)
	}
	if stats.Version != "0.8.4" || stats.TotalUser != 12 || stats.UsersActive != 9 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRefresh_ReplacesToken(t *testing.T) {
	p, srv := newFakePanel(t)
	c := newTestClient(t, srv)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n := atomic.LoadInt32(&p.tokenCalls); n != 2 {
		t.Fatalf("expected 2 token requests, got %d", n)
	}
	if c.Token() != "tok-1" {
		t.Fatalf("unexpected token %q", c.Token())
	}
}
