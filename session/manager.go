package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/mmdatafocus/pos_sync/config"
	"github.com/sirupsen/logrus"
)

type Event string

const (
	EventSignedIn       Event = "signed_in"
	EventTokenRefreshed Event = "token_refreshed"
	EventSignedOut      Event = "signed_out"
)

var ErrNoSession = errors.New("no active session")

// refreshSkew refreshes the access token slightly before its exp claim so a
// drain pass does not start with a token that dies mid-pass.
const refreshSkew = 60 * time.Second

// Manager owns the device's auth session. EnsureValidSession is advisory
// for the orchestrator: a failure is surfaced as a warning and the pass
// continues, letting the remote reject individual writes.
type Manager struct {
	mu       sync.Mutex
	access   string
	refresh  string
	handlers []func(Event)

	refreshURL string
	http       *http.Client
	logger     *logrus.Logger
}

func NewManager(logger *logrus.Logger) *Manager {
	return &Manager{
		refreshURL: strings.TrimSpace(os.Getenv("AUTH_REFRESH_URL")),
		http:       &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Token implements remote.TokenProvider.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access
}

func (m *Manager) SignIn(accessToken, refreshToken string) {
	m.mu.Lock()
	m.access = accessToken
	m.refresh = refreshToken
	m.mu.Unlock()
	m.emit(EventSignedIn)
}

func (m *Manager) SignOut() {
	m.mu.Lock()
	m.access = ""
	m.refresh = ""
	m.mu.Unlock()
	m.emit(EventSignedOut)
}

// OnChange registers a session-state listener (sign-in, token-refresh,
// sign-out). The orchestrator uses these as sync triggers.
func (m *Manager) OnChange(fn func(Event)) {
	m.mu.Lock()
	m.handlers = append(m.handlers, fn)
	m.mu.Unlock()
}

func (m *Manager) emit(ev Event) {
	m.mu.Lock()
	handlers := make([]func(Event), len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()
	for _, fn := range handlers {
		fn(ev)
	}
}

// EnsureValidSession checks the access token's exp claim and refreshes when
// it is expired or about to expire. Tokens without a readable exp claim are
// passed through as-is; the remote is the authority on rejection.
func (m *Manager) EnsureValidSession(ctx context.Context) error {
	m.mu.Lock()
	access := m.access
	m.mu.Unlock()

	if access == "" {
		return ErrNoSession
	}

	exp, ok := tokenExpiry(access)
	if !ok {
		return nil
	}
	if time.Until(exp) > refreshSkew {
		return nil
	}
	return m.Refresh(ctx)
}

func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	parser := jwt.Parser{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(exp), 0), true
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges the refresh token for a new access token and emits
// EventTokenRefreshed on success.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	refresh := m.refresh
	refreshURL := m.refreshURL
	m.mu.Unlock()

	if refresh == "" {
		return ErrNoSession
	}
	if refreshURL == "" {
		return errors.New("AUTH_REFRESH_URL is not set")
	}

	raw, err := json.Marshal(refreshRequest{RefreshToken: refresh})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, refreshURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := errors.New("session refresh rejected: " + strings.TrimSpace(string(body)))
		config.LogError(m.logger, "session", "Refresh", "refreshing access token", nil, err)
		return err
	}

	var parsed refreshResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return err
	}
	if parsed.AccessToken == "" {
		return errors.New("session refresh returned no access token")
	}

	m.mu.Lock()
	m.access = parsed.AccessToken
	if parsed.RefreshToken != "" {
		m.refresh = parsed.RefreshToken
	}
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.WithFields(logrus.Fields{"module": "session"}).Info("access token refreshed")
	}
	m.emit(EventTokenRefreshed)
	return nil
}
