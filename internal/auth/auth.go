package auth

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"

	"github.com/jsb0315/image-server/internal/models"
)

const (
	sessionName          = "image-server-session"
	sessionAuthedKey     = "authenticated"
	sessionMaxAgeSeconds = 24 * 60 * 60
)

// Service implements the two non-composing gates: a cookie-session check for
// the browser UI and a static-key check for the programmatic API. A route
// uses one or the other, never both.
type Service struct {
	store    sessions.Store
	password string
	apiKey   string
	logger   *slog.Logger
}

func NewService(sessionSecret, password, apiKey string, logger *slog.Logger) *Service {
	store := sessions.NewCookieStore(sessionKeyBytes(sessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAgeSeconds,
		HttpOnly: true,
		Secure:   false,
		SameSite: http.SameSiteLaxMode,
	}
	return &Service{
		store:    store,
		password: password,
		apiKey:   apiKey,
		logger:   logger,
	}
}

// sessionKeyBytes derives a 32-byte cookie key from the configured secret.
// Hex-looking secrets are decoded; anything else is used directly and
// padded or truncated to the AES-256 key size.
func sessionKeyBytes(secret string) []byte {
	var key []byte
	if len(secret)%2 == 0 && len(secret) >= 32 {
		if decoded, err := hex.DecodeString(secret); err == nil {
			key = decoded
		}
	}
	if key == nil {
		key = []byte(secret)
	}
	if len(key) > 32 {
		key = key[:32]
	}
	if len(key) < 32 {
		padded := make([]byte, 32)
		copy(padded, key)
		key = padded
	}
	return key
}

// CheckPassword compares the submitted password against the configured
// shared secret. A bcrypt-hashed value in the configuration is honored;
// otherwise the comparison is a constant-time plaintext match.
func (s *Service) CheckPassword(password string) bool {
	if strings.HasPrefix(s.password, "$2a$") || strings.HasPrefix(s.password, "$2b$") || strings.HasPrefix(s.password, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(s.password), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(s.password), []byte(password)) == 1
}

func (s *Service) Authenticated(r *http.Request) bool {
	session, err := s.store.Get(r, sessionName)
	if err != nil {
		return false
	}
	authed, ok := session.Values[sessionAuthedKey].(bool)
	return ok && authed
}

func (s *Service) SetSession(w http.ResponseWriter, r *http.Request) error {
	session, err := s.store.Get(r, sessionName)
	if err != nil {
		// A corrupt cookie still yields a usable fresh session.
		s.logger.Warn("decoding session cookie failed", "error", err)
	}
	session.Values[sessionAuthedKey] = true
	return session.Save(r, w)
}

func (s *Service) ClearSession(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, sessionName)
	session.Values = make(map[any]any)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// RequireSession redirects unauthenticated browser requests to the login
// form.
func (s *Service) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.Authenticated(r) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	}
}

// RequireAPIKey accepts the key via the x-api-key header or the api_key
// query parameter and rejects everything else with a structured 401.
func (s *Service) RequireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("x-api-key")
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(models.APIResponse{
				Success: false,
				Error:   "Unauthorized: Invalid or missing API key",
				Message: "Provide the key via the x-api-key header or the api_key query parameter.",
			})
			return
		}
		next.ServeHTTP(w, r)
	}
}
