package management

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/paging"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/user/entity"
)

type staticToken struct {
	invalidated atomic.Int32
}

func (s *staticToken) AccessToken(context.Context) (string, error) { return "tok", nil }
func (s *staticToken) Invalidate()                                 { s.invalidated.Add(1) }

func newTestClient(t *testing.T, h http.Handler) (*Client, *staticToken) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	tokens := &staticToken{}
	c, err := NewClient(Config{BaseURL: srv.URL + "/api/v2/"}, tokens, zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, tokens
}

// usersHandler serves n users with page-number paging, capping per_page at capSize.
func usersHandler(t *testing.T, n, capSize int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/api/v2/users" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("include_totals") != "true" {
			t.Errorf("include_totals not set")
		}
		page, _ := strconv.Atoi(q.Get("page"))
		per, _ := strconv.Atoi(q.Get("per_page"))
		if per > capSize {
			per = capSize
		}
		start := page * per
		users := []map[string]any{}
		for i := start; i < n && i < start+per; i++ {
			users = append(users, map[string]any{"user_id": "auth0|" + strconv.Itoa(i), "email": strconv.Itoa(i) + "@example.com"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"start": start, "limit": per, "length": len(users), "total": n, "users": users,
		})
	})
}

func TestListUsersShouldDecodeEnvelope(t *testing.T) {
	c, _ := newTestClient(t, usersHandler(t, 5, 100))

	page, err := c.ListUsers(context.Background(), 2, 2)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if page.Total != 5 || page.Limit != 2 || len(page.Items) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Items[0].UserID != "auth0|2" {
		t.Errorf("first item = %s", page.Items[0].UserID)
	}
}

func TestListUsersThroughListerShouldAdoptProviderPageSize(t *testing.T) {
	c, _ := newTestClient(t, usersHandler(t, 23, 5))

	users, err := paging.Collect(context.Background(), c.ListUsers, 50)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(users) != 23 {
		t.Fatalf("expected 23 users, got %d", len(users))
	}
	seen := map[string]bool{}
	for _, u := range users {
		if seen[u.UserID] {
			t.Fatalf("duplicate %s", u.UserID)
		}
		seen[u.UserID] = true
	}
}

func TestFetchPageShouldAcceptBareArray(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"rul_1","name":"A","enabled":true,"script":"x"}]`)
	}))

	page, err := c.ListRules(context.Background(), 0, 50)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if page.Total != 1 || page.Items[0].Name != "A" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestFetchPageShouldRejectBadTotals(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{"missing total", `{"users":[{"user_id":"auth0|1"}],"limit":50}`, ErrMissingTotal},
		{"malformed total", `{"users":[],"total":"many","limit":50}`, nil},
		{"malformed limit", `{"users":[],"total":3,"limit":"fifty"}`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tc.body)
			}))
			_, err := c.ListUsers(context.Background(), 0, 50)
			if err == nil {
				t.Fatal("expected decode error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDeleteUserNotFoundShouldMatchErrNotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/v2/users/auth0|gone" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"statusCode":404,"error":"Not Found","message":"The user does not exist.","errorCode":"inexistent_user"}`)
	}))

	err := c.DeleteUser(context.Background(), "auth0|gone")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "The user does not exist." || apiErr.ErrorCode != "inexistent_user" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestServerErrorShouldNotMatchNotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "slow down")
	}))

	_, err := c.GetUser(context.Background(), "auth0|1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if IsNotFound(err) {
		t.Error("429 must not match ErrNotFound")
	}
	if apiErr.Message != "slow down" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestUnauthorizedShouldInvalidateToken(t *testing.T) {
	c, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	if _, err := c.GetUser(context.Background(), "auth0|1"); err == nil {
		t.Fatal("expected error")
	}
	if tokens.invalidated.Load() != 1 {
		t.Errorf("expected one invalidation, got %d", tokens.invalidated.Load())
	}
}

func TestCreateUserShouldAlwaysSendVerificationFlags(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		for _, k := range []string{"email_verified", "verify_email", "user_metadata", "app_metadata"} {
			if _, ok := body[k]; !ok {
				t.Errorf("body missing %s: %v", k, body)
			}
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"user_id":"auth0|new","email":"a@example.com"}`)
	}))

	u, err := c.CreateUser(context.Background(), entity.UserSpec{Connection: "db", Email: "a@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.UserID != "auth0|new" {
		t.Errorf("user id = %s", u.UserID)
	}
}

func TestSetRuleConfigShouldPutValue(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/v2/rules-configs/API_URL" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["value"] != "https://api" {
			t.Errorf("body = %v", body)
		}
		_, _ = io.WriteString(w, `{"key":"API_URL","value":"https://api"}`)
	}))

	if err := c.SetRuleConfig(context.Background(), "API_URL", "https://api"); err != nil {
		t.Fatalf("SetRuleConfig: %v", err)
	}
}

func TestOIDCConformant(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fields") == "" {
			t.Errorf("fields not requested")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"start": 0, "limit": 50, "length": 2, "total": 2,
			"clients": []map[string]any{
				{"client_id": "abc", "name": "web", "oidc_conformant": true},
				{"client_id": "def", "name": "legacy", "oidc_conformant": false},
			},
		})
	}))

	ok, err := c.OIDCConformant(context.Background(), "abc")
	if err != nil || !ok {
		t.Fatalf("abc: %v %v", ok, err)
	}
	ok, err = c.OIDCConformant(context.Background(), "def")
	if err != nil || ok {
		t.Fatalf("def: %v %v", ok, err)
	}
	if _, err := c.OIDCConformant(context.Background(), "zzz"); !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}, &staticToken{}, nil); !errors.Is(err, ErrBaseURLRequired) {
		t.Fatalf("expected ErrBaseURLRequired, got %v", err)
	}
}
