package shared

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionPayloadVersion = 1

// SessionData is the principal carried by a session. Permissions is only
// meaningful when PermissionsResolvedAt is set.
type SessionData struct {
	UserID                string     `json:"user_id"`
	Username              string     `json:"username,omitempty"`
	DisplayName           string     `json:"display_name,omitempty"`
	Permissions           []string   `json:"permissions,omitempty"`
	PermissionsResolvedAt *time.Time `json:"permissions_resolved_at,omitempty"`
}

// HasPermissions reports whether a permission set was attached to the session.
func (d SessionData) HasPermissions() bool {
	return d.PermissionsResolvedAt != nil
}

// Validate rejects payloads that do not have the expected shape.
func (d SessionData) Validate() error {
	if d.UserID == "" {
		if d.Username != "" || d.DisplayName != "" || d.PermissionsResolvedAt != nil || len(d.Permissions) > 0 {
			return errors.New("session: principal without user id")
		}
		return nil
	}
	if len(d.UserID) > 128 {
		return errors.New("session: user id too long")
	}
	if d.PermissionsResolvedAt == nil && len(d.Permissions) > 0 {
		return errors.New("session: permissions without resolution timestamp")
	}
	for _, perm := range d.Permissions {
		if !IsPermissionName(perm) {
			return errors.New("session: malformed permission")
		}
	}
	return nil
}

// SessionManager orchestrates cookie based sessions backed by Redis.
type SessionManager struct {
	client     redis.UniversalClient
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
}

// Session holds per-request session data.
type Session struct {
	ID        string
	values    map[string]string
	principal SessionData
	manager   *SessionManager
	previous  string
	isNew     bool
	dirty     bool
	destroyed bool
}

type sessionPayload struct {
	Version   int               `json:"v"`
	Values    map[string]string `json:"values,omitempty"`
	Principal *SessionData      `json:"principal,omitempty"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client redis.UniversalClient, cookieName string, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
	}
}

// Load loads or creates a new session for request. A stored payload that does
// not decode into the expected shape yields a fresh anonymous session.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	raw, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	stored, err := decodeSessionPayload(raw)
	if err != nil {
		sess := sm.newSession()
		sess.previous = cookie.Value
		return sess, nil
	}

	sess := sm.newSession()
	sess.ID = cookie.Value
	sess.values = stored.Values
	if sess.values == nil {
		sess.values = make(map[string]string)
	}
	if stored.Principal != nil {
		sess.principal = *stored.Principal
	}
	sess.isNew = false
	sess.dirty = false
	return sess, nil
}

func decodeSessionPayload(raw []byte) (sessionPayload, error) {
	var stored sessionPayload
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&stored); err != nil {
		return sessionPayload{}, err
	}
	if stored.Version != sessionPayloadVersion {
		return sessionPayload{}, errors.New("session: unsupported payload version")
	}
	if stored.Principal != nil {
		if err := stored.Principal.Validate(); err != nil {
			return sessionPayload{}, err
		}
	}
	return stored, nil
}

// Commit persists the session and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.previous != "" {
		if err := sm.client.Del(ctx, sm.redisKey(sess.previous)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		sess.previous = ""
	}

	if sess.destroyed {
		if err := sm.client.Del(ctx, sm.redisKey(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sm.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: http.SameSiteStrictMode,
		})
		return nil
	}

	if sess.ID == "" {
		sess.ID = sm.generateSessionID()
	}

	if sess.dirty || sess.isNew {
		payload := sessionPayload{Version: sessionPayloadVersion, Values: sess.values}
		if sess.principal.UserID != "" {
			principal := sess.principal
			payload.Principal = &principal
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if err := sm.client.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl).Err(); err != nil {
			return err
		}
		sess.dirty = false
		sess.isNew = false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(sm.ttl),
	})
	return nil
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	if s.values == nil {
		return ""
	}
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if s.values == nil {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// User returns the current user ID.
func (s *Session) User() string {
	if s == nil {
		return ""
	}
	return s.principal.UserID
}

// Principal returns a copy of the principal carried by the session.
func (s *Session) Principal() (SessionData, bool) {
	if s == nil || s.principal.UserID == "" {
		return SessionData{}, false
	}
	out := s.principal
	out.Permissions = slices.Clone(s.principal.Permissions)
	return out, true
}

// SetPrincipal replaces the principal and rotates the session id so a
// pre-login identifier cannot be reused.
func (s *Session) SetPrincipal(data SessionData) {
	data.Permissions = slices.Clone(data.Permissions)
	if s.principal.UserID != data.UserID && !s.isNew {
		s.previous = s.ID
		s.ID = ""
	}
	s.principal = data
	s.dirty = true
}

// SetPermissions attaches a resolved permission set to the current principal.
func (s *Session) SetPermissions(perms []string, resolvedAt time.Time) {
	if s.principal.UserID == "" {
		return
	}
	at := resolvedAt.UTC()
	s.principal.Permissions = slices.Clone(perms)
	s.principal.PermissionsResolvedAt = &at
	s.dirty = true
}

// ClearPrincipal drops the principal, leaving an anonymous session.
func (s *Session) ClearPrincipal() {
	s.principal = SessionData{}
	s.dirty = true
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:      sm.generateSessionID(),
		values:  make(map[string]string),
		manager: sm,
		isNew:   true,
		dirty:   true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}

func (sm *SessionManager) generateSessionID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	if len(sm.secret) > 0 {
		for i := range b {
			b[i] ^= sm.secret[i%len(sm.secret)]
		}
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// New returns an empty session that is persisted on the next Commit.
func (sm *SessionManager) New() *Session {
	return sm.newSession()
}
