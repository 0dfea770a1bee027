package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"alertsync/internal/alerts"
)

// ExpirySkew treats access tokens this close to expiry as already expired.
const ExpirySkew = 30 * time.Second

// tokenResponse is the body returned by login, register and refresh.
type tokenResponse struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Registration is the account created by Register.
type Registration struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	FullName    string `json:"full_name" validate:"required"`
	PhoneNumber string `json:"phone_number" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// AuthClient performs the login, registration and token refresh exchanges
// and persists the resulting Session. It also sends authenticated requests
// on behalf of the other clients, refreshing the token at most once per
// request.
type AuthClient struct {
	transport *Transport
	sessions  alerts.SessionStore
	clock     alerts.Clock
	logger    alerts.Logger
	validator *payloadValidator

	refreshes singleflight.Group
}

// NewAuthClient creates an AuthClient that stores sessions in sessions.
func NewAuthClient(transport *Transport, sessions alerts.SessionStore, clock alerts.Clock, logger alerts.Logger) *AuthClient {
	if clock == nil {
		clock = alerts.RealClock{}
	}
	if logger == nil {
		logger = alerts.NewNopLogger()
	}
	return &AuthClient{
		transport: transport,
		sessions:  sessions,
		clock:     clock,
		logger:    logger,
		validator: newPayloadValidator(),
	}
}

// Login exchanges credentials for a Session. Rejected credentials fail with
// alerts.ErrInvalidCredentials.
func (a *AuthClient) Login(ctx context.Context, email, password string) (*alerts.Session, error) {
	if err := a.validator.Check(loginRequest{Email: email, Password: password}); err != nil {
		return nil, err
	}

	var resp tokenResponse
	err := a.transport.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/login",
		query:  url.Values{"email": {email}, "password": {password}},
		out:    &resp,
	}, "")
	if err != nil {
		var re *alerts.RemoteError
		if errors.As(err, &re) && errors.Is(re.Kind, alerts.ErrUnauthorized) {
			return nil, &alerts.RemoteError{Kind: alerts.ErrInvalidCredentials, Status: re.Status, Detail: re.Detail}
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	s, err := a.store(resp, "")
	if err != nil {
		return nil, err
	}
	a.logger.Info("logged in", "user_id", s.UserID)
	return s, nil
}

// Register creates an account and stores its Session.
func (a *AuthClient) Register(ctx context.Context, reg Registration) (*alerts.Session, error) {
	if err := a.validator.Check(reg); err != nil {
		return nil, err
	}

	var resp tokenResponse
	err := a.transport.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/register",
		body:   reg,
		out:    &resp,
	}, "")
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	s, err := a.store(resp, "")
	if err != nil {
		return nil, err
	}
	a.logger.Info("registered", "user_id", s.UserID)
	return s, nil
}

// Refresh exchanges the stored refresh token for a new Session. Without a
// stored session it fails with alerts.ErrNoRefreshToken and sends nothing.
// When the service rejects the refresh token the session is cleared and the
// error wraps alerts.ErrRefreshRejected.
func (a *AuthClient) Refresh(ctx context.Context) (*alerts.Session, error) {
	return a.refresh(ctx, "")
}

// Logout clears the stored session.
func (a *AuthClient) Logout() error {
	if err := a.sessions.Clear(); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	a.logger.Info("logged out")
	return nil
}

// refresh runs at most one remote refresh at a time. When stale is set and
// the stored access token no longer matches it, another caller has already
// refreshed and the current session is returned instead.
func (a *AuthClient) refresh(ctx context.Context, stale string) (*alerts.Session, error) {
	v, err, _ := a.refreshes.Do("refresh", func() (any, error) {
		current, err := a.sessions.Get()
		if err != nil {
			return nil, fmt.Errorf("reading session: %w", err)
		}
		if current == nil || current.RefreshToken == "" {
			return nil, alerts.ErrNoRefreshToken
		}
		if stale != "" && current.AccessToken != stale {
			return current, nil
		}

		// Joined callers share this exchange, so it must outlive the
		// first caller's cancellation.
		var resp tokenResponse
		err = a.transport.do(context.WithoutCancel(ctx), request{
			method: http.MethodPost,
			path:   "/auth/refresh-token",
			body:   refreshRequest{RefreshToken: current.RefreshToken},
			out:    &resp,
		}, "")
		if err != nil {
			if rejected(err) {
				a.logger.Warn("refresh token rejected, clearing session", "user_id", current.UserID)
				if cerr := a.sessions.Clear(); cerr != nil {
					return nil, errors.Join(refreshRejected(err), fmt.Errorf("clearing session: %w", cerr))
				}
				return nil, refreshRejected(err)
			}
			return nil, fmt.Errorf("refresh: %w", err)
		}

		s, err := a.store(resp, current.UserID)
		if err != nil {
			return nil, err
		}
		a.logger.Debug("session refreshed", "user_id", s.UserID)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*alerts.Session), nil
}

// rejected reports whether a refresh failure means the refresh token is no
// longer valid.
func rejected(err error) bool {
	var re *alerts.RemoteError
	if !errors.As(err, &re) {
		return false
	}
	switch re.Status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

func refreshRejected(err error) error {
	var re *alerts.RemoteError
	if errors.As(err, &re) {
		return &alerts.RemoteError{Kind: alerts.ErrRefreshRejected, Status: re.Status, Detail: re.Detail}
	}
	return fmt.Errorf("%w: %v", alerts.ErrRefreshRejected, err)
}

// store converts a token response into a Session and persists it before
// returning. fallbackUserID is used when the response omits user_id.
func (a *AuthClient) store(resp tokenResponse, fallbackUserID string) (*alerts.Session, error) {
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token response is missing tokens", alerts.ErrDecode)
	}
	userID := resp.UserID
	if userID == "" {
		userID = fallbackUserID
	}

	s := &alerts.Session{
		UserID:       userID,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    a.expiresAt(resp),
	}
	if err := a.sessions.Replace(s); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}
	return s, nil
}

// expiresAt prefers the access token's exp claim and falls back to
// expires_in. The token signature is not checked; only the service can.
func (a *AuthClient) expiresAt(resp tokenResponse) *time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(resp.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		t := claims.ExpiresAt.Time.UTC()
		return &t
	}
	if resp.ExpiresIn > 0 {
		t := a.clock.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
		return &t
	}
	return nil
}

// Authorized sends a request with the stored access token. An expired
// session is refreshed first. A 401 triggers exactly one refresh and one
// re-issued request; if the refresh fails for lack of valid credentials the
// error wraps alerts.ErrUnauthorized.
func (a *AuthClient) authorized(ctx context.Context, r request) error {
	s, err := a.sessions.Get()
	if err != nil {
		return fmt.Errorf("reading session: %w", err)
	}
	if s == nil {
		return &alerts.RemoteError{Kind: alerts.ErrUnauthorized, Detail: "not logged in"}
	}

	if s.Expired(a.clock.Now(), ExpirySkew) {
		fresh, err := a.refresh(ctx, s.AccessToken)
		if err != nil {
			return unauthorized(err)
		}
		s = fresh
	}

	err = a.transport.do(ctx, r, s.AccessToken)
	if !errors.Is(err, alerts.ErrUnauthorized) {
		return err
	}

	a.logger.Debug("access token rejected, refreshing", "method", r.method, "path", r.path)
	fresh, rerr := a.refresh(ctx, s.AccessToken)
	if rerr != nil {
		return unauthorized(rerr)
	}
	return a.transport.do(ctx, r, fresh.AccessToken)
}

// unauthorized maps a failed refresh onto the caller's error. Missing or
// rejected credentials become alerts.ErrUnauthorized; transport failures
// pass through unchanged.
func unauthorized(refreshErr error) error {
	if alerts.RequiresLogin(refreshErr) {
		return fmt.Errorf("%w: %w", alerts.ErrUnauthorized, refreshErr)
	}
	return refreshErr
}
