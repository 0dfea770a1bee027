package remote

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"alertsync/internal/alerts"
	"alertsync/internal/config"
	"alertsync/internal/session"
	"alertsync/internal/testutil"
)

func newTestClient(t *testing.T, fake *testutil.FakeRemote) (*Client, *session.MemoryStore, *testutil.StubClock) {
	t.Helper()

	sessions := session.NewMemoryStore()
	clock := testutil.FixedClock()
	c, err := NewClient(config.ServerConfig{BaseURL: fake.URL(), Timeout: "5s"}, nil, sessions, clock, alerts.NewNopLogger())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c, sessions, clock
}

// loggedIn stores a session matching the fake's current tokens.
func loggedIn(t *testing.T, fake *testutil.FakeRemote, sessions alerts.SessionStore) *alerts.Session {
	t.Helper()
	s := fake.IssueTokens("user-1")
	if err := sessions.Replace(s); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	return s
}

func TestAuthClient_Login(t *testing.T) {
	t.Parallel()

	t.Run("stores session on success", func(t *testing.T) {
		t.Parallel()
		fake := testutil.NewFakeRemote(t)
		fake.AddUser("ana@example.com", "hunter22", "user-7")
		c, sessions, clock := newTestClient(t, fake)

		s, err := c.Auth.Login(context.Background(), "ana@example.com", "hunter22")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if s.UserID != "user-7" || s.AccessToken != fake.AccessToken() {
			t.Errorf("Login() = %+v", s)
		}
		wantExpiry := clock.Now().Add(time.Hour)
		if s.ExpiresAt == nil || !s.ExpiresAt.Equal(wantExpiry) {
			t.Errorf("ExpiresAt = %v, want %v", s.ExpiresAt, wantExpiry)
		}

		stored, _ := sessions.Get()
		if stored == nil || stored.AccessToken != s.AccessToken || stored.RefreshToken != s.RefreshToken || stored.UserID != s.UserID {
			t.Errorf("stored session = %+v, want %+v", stored, s)
		}
	})

	t.Run("rejected credentials", func(t *testing.T) {
		t.Parallel()
		fake := testutil.NewFakeRemote(t)
		fake.AddUser("ana@example.com", "hunter22", "user-7")
		c, sessions, _ := newTestClient(t, fake)

		_, err := c.Auth.Login(context.Background(), "ana@example.com", "wrong")
		if !errors.Is(err, alerts.ErrInvalidCredentials) {
			t.Fatalf("Login() error = %v, want ErrInvalidCredentials", err)
		}
		var re *alerts.RemoteError
		if !errors.As(err, &re) || re.Detail != "Incorrect email or password" {
			t.Errorf("Login() detail = %v", err)
		}
		if s, _ := sessions.Get(); s != nil {
			t.Errorf("session stored after failed login: %+v", s)
		}
	})

	t.Run("malformed email is rejected locally", func(t *testing.T) {
		t.Parallel()
		fake := testutil.NewFakeRemote(t)
		c, _, _ := newTestClient(t, fake)

		_, err := c.Auth.Login(context.Background(), "not-an-email", "pw")
		if !errors.Is(err, alerts.ErrValidation) {
			t.Fatalf("Login() error = %v, want ErrValidation", err)
		}
		if n := fake.Calls(testutil.RouteLogin); n != 0 {
			t.Errorf("login calls = %d, want 0", n)
		}
	})
}

func TestAuthClient_Register(t *testing.T) {
	t.Parallel()

	reg := Registration{
		Email:       "bo@example.com",
		Password:    "secret123",
		FullName:    "Bo Lee",
		PhoneNumber: "+15550100",
	}

	t.Run("stores session", func(t *testing.T) {
		t.Parallel()
		fake := testutil.NewFakeRemote(t)
		c, sessions, _ := newTestClient(t, fake)

		s, err := c.Auth.Register(context.Background(), reg)
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		if s.UserID == "" {
			t.Error("Register() returned empty user id")
		}
		if stored, _ := sessions.Get(); stored == nil || stored.AccessToken != s.AccessToken {
			t.Errorf("stored session = %+v", stored)
		}
	})

	t.Run("duplicate email is a validation error", func(t *testing.T) {
		t.Parallel()
		fake := testutil.NewFakeRemote(t)
		fake.AddUser(reg.Email, "x", "user-1")
		c, _, _ := newTestClient(t, fake)

		_, err := c.Auth.Register(context.Background(), reg)
		if !errors.Is(err, alerts.ErrValidation) {
			t.Fatalf("Register() error = %v, want ErrValidation", err)
		}
		var re *alerts.RemoteError
		if !errors.As(err, &re) || re.Detail != "Email already registered" {
			t.Errorf("Register() error = %v, want detail", err)
		}
	})

	t.Run("missing fields are rejected locally", func(t *testing.T) {
		t.Parallel()
		fake := testutil.NewFakeRemote(t)
		c, _, _ := newTestClient(t, fake)

		_, err := c.Auth.Register(context.Background(), Registration{Email: "bo@example.com"})
		if !errors.Is(err, alerts.ErrValidation) {
			t.Fatalf("Register() error = %v, want ErrValidation", err)
		}
		if n := fake.Calls(testutil.RouteRegister); n != 0 {
			t.Errorf("register calls = %d, want 0", n)
		}
	})
}

func TestAuthClient_Refresh(t *testing.T) {
	t.Parallel()

	t.Run("no stored session", func(t *testing.T) {
		t.Parallel()
		fake := testutil.NewFakeRemote(t)
		c, _, _ := newTestClient(t, fake)

		_, err := c.Auth.Refresh(context.Background())
		if !errors.Is(err, alerts.ErrNoRefreshToken) {
			t.Fatalf("Refresh() error = %v, want ErrNoRefreshToken", err)
		}
		if n := fake.Calls(testutil.RouteRefresh); n != 0 {
			t.Errorf("refresh calls = %d, want 0", n)
		}
	})

	t.Run("replaces session and keeps user id", func(t *testing.T) {
		t.Parallel()
		fake := testutil.NewFakeRemote(t)
		c, sessions, _ := newTestClient(t, fake)
		old := loggedIn(t, fake, sessions)

		s, err := c.Auth.Refresh(context.Background())
		if err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		if s.AccessToken == old.AccessToken || s.RefreshToken == old.RefreshToken {
			t.Errorf("Refresh() did not rotate tokens: %+v", s)
		}
		if s.UserID != "user-1" {
			t.Errorf("UserID = %q, want user-1", s.UserID)
		}
		if stored, _ := sessions.Get(); stored == nil || stored.AccessToken != s.AccessToken {
			t.Errorf("stored session = %+v, want %+v", stored, s)
		}
	})

	t.Run("rejection clears the session", func(t *testing.T) {
		t.Parallel()
		fake := testutil.NewFakeRemote(t)
		c, sessions, _ := newTestClient(t, fake)
		loggedIn(t, fake, sessions)
		fake.Lock()
		fake.RejectRefresh = true
		fake.Unlock()

		_, err := c.Auth.Refresh(context.Background())
		if !errors.Is(err, alerts.ErrRefreshRejected) {
			t.Fatalf("Refresh() error = %v, want ErrRefreshRejected", err)
		}
		if !alerts.RequiresLogin(err) {
			t.Error("RequiresLogin() = false for rejected refresh")
		}
		if s, _ := sessions.Get(); s != nil {
			t.Errorf("session not cleared: %+v", s)
		}
	})

	t.Run("server failure keeps the session", func(t *testing.T) {
		t.Parallel()
		fake := testutil.NewFakeRemote(t)
		c, sessions, _ := newTestClient(t, fake)
		old := loggedIn(t, fake, sessions)
		fake.FailNext(testutil.RouteRefresh, http.StatusServiceUnavailable, `{"detail":"maintenance"}`)

		_, err := c.Auth.Refresh(context.Background())
		if !errors.Is(err, alerts.ErrServer) {
			t.Fatalf("Refresh() error = %v, want ErrServer", err)
		}
		if s, _ := sessions.Get(); s == nil || s.AccessToken != old.AccessToken {
			t.Errorf("session = %+v, want unchanged", s)
		}
	})
}

func TestAuthClient_Logout(t *testing.T) {
	t.Parallel()
	fake := testutil.NewFakeRemote(t)
	c, sessions, _ := newTestClient(t, fake)
	loggedIn(t, fake, sessions)

	if err := c.Auth.Logout(); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if s, _ := sessions.Get(); s != nil {
		t.Errorf("session after logout = %+v", s)
	}
}

func TestAuthClient_ExpiresAt(t *testing.T) {
	t.Parallel()

	clock := testutil.FixedClock()
	a := NewAuthClient(nil, session.NewMemoryStore(), clock, nil)

	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	tests := []struct {
		name string
		resp tokenResponse
		want *time.Time
	}{
		{
			name: "exp claim wins over expires_in",
			resp: tokenResponse{AccessToken: signed, ExpiresIn: 60},
			want: &exp,
		},
		{
			name: "opaque token uses expires_in",
			resp: tokenResponse{AccessToken: "opaque", ExpiresIn: 60},
			want: ptr(clock.Now().Add(time.Minute)),
		},
		{
			name: "unknown expiry",
			resp: tokenResponse{AccessToken: "opaque"},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.expiresAt(tt.resp)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("expiresAt() = %v, want %v", got, tt.want)
			}
			if got != nil && !got.Equal(*tt.want) {
				t.Errorf("expiresAt() = %v, want %v", *got, *tt.want)
			}
		})
	}
}

func ptr[T any](v T) *T { return &v }
