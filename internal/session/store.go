// Package session holds the authenticated identity and its bearer token.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"atask/internal/kvstore"
	"atask/internal/pubsub"
	"atask/internal/service"
)

// Storage keys. Identity and token are written independently so a failed
// write of one never corrupts the other.
const (
	UserKey  = "auth_user"
	TokenKey = "auth_token"
)

// Store is the session store. Create one per application root.
type Store struct {
	kv  kvstore.Store
	log logrus.FieldLogger
	now func() time.Time

	identity *pubsub.Subject[*service.User]

	mu    sync.RWMutex
	token string
}

// New creates a store and loads any persisted session from kv.
// Invalid persisted identity data is treated as absent and both keys are
// cleared. So is a JWT token whose expiry has passed.
func New(ctx context.Context, kv kvstore.Store, log logrus.FieldLogger) (*Store, error) {
	s := &Store{
		kv:       kv,
		log:      log,
		now:      time.Now,
		identity: pubsub.NewSubject[*service.User](nil),
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	userJSON, hasUser, err := s.kv.Get(ctx, UserKey)
	if err != nil {
		return fmt.Errorf("read stored identity: %w", err)
	}
	token, _, err := s.kv.Get(ctx, TokenKey)
	if err != nil {
		return fmt.Errorf("read stored token: %w", err)
	}
	if !hasUser {
		return nil
	}

	var user service.User
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil || (user.Email == "" && user.ID == "") {
		s.log.WithError(err).Warn("discarding invalid stored identity")
		return s.clearStorage(ctx)
	}

	if exp, ok := tokenExpiry(token); ok && !exp.After(s.now()) {
		s.log.WithField("expired_at", exp).Info("stored session token expired")
		return s.clearStorage(ctx)
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	s.identity.Publish(&user)
	return nil
}

// Subscribe delivers the current identity (nil when signed out) immediately
// and then every change.
func (s *Store) Subscribe(fn func(*service.User)) *pubsub.Subscription {
	return s.identity.Subscribe(fn)
}

// Current returns the current identity or nil.
func (s *Store) Current() *service.User {
	return s.identity.Value()
}

// CurrentToken returns the bearer token, if any.
func (s *Store) CurrentToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// TokenExpiry returns the expiry of the current token when it is a JWT
// carrying an exp claim.
func (s *Store) TokenExpiry() (time.Time, bool) {
	token, ok := s.CurrentToken()
	if !ok {
		return time.Time{}, false
	}
	return tokenExpiry(token)
}

// IsAuthenticated reports whether both an identity and a token are present.
func (s *Store) IsAuthenticated() bool {
	_, hasToken := s.CurrentToken()
	return hasToken && s.Current() != nil
}

// SetIdentity persists user and token and publishes the new identity.
// Both writes are attempted even if one fails; the joined error is returned.
func (s *Store) SetIdentity(ctx context.Context, user *service.User, token string) error {
	if user == nil {
		return errors.New("session: nil user")
	}

	var errs []error
	data, err := json.Marshal(user)
	if err != nil {
		errs = append(errs, fmt.Errorf("encode identity: %w", err))
	} else if err := s.kv.Set(ctx, UserKey, string(data)); err != nil {
		errs = append(errs, fmt.Errorf("store identity: %w", err))
	}
	if err := s.kv.Set(ctx, TokenKey, token); err != nil {
		errs = append(errs, fmt.Errorf("store token: %w", err))
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	u := *user
	s.identity.Publish(&u)
	s.log.WithField("email", user.Email).Debug("session established")
	return errors.Join(errs...)
}

// Clear removes the persisted session and publishes nil.
func (s *Store) Clear(ctx context.Context) error {
	err := s.clearStorage(ctx)

	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()

	s.identity.Publish(nil)
	s.log.Debug("session cleared")
	return err
}

func (s *Store) clearStorage(ctx context.Context) error {
	var errs []error
	if err := s.kv.Delete(ctx, UserKey); err != nil {
		errs = append(errs, fmt.Errorf("remove identity: %w", err))
	}
	if err := s.kv.Delete(ctx, TokenKey); err != nil {
		errs = append(errs, fmt.Errorf("remove token: %w", err))
	}
	return errors.Join(errs...)
}

// tokenExpiry reads the exp claim of a JWT without verifying it; the backend
// is the one that verifies. Opaque tokens report false.
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
