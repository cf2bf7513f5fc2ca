package httpapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TokenSource supplies the bearer token. session.Store satisfies it.
type TokenSource interface {
	CurrentToken() (string, bool)
}

// authPaths never carry the bearer token.
var authPaths = []string{"/auth/login", "/auth/register", "/auth/google"}

func isAuthPath(path string) bool {
	path = strings.TrimSuffix(path, "/")
	for _, p := range authPaths {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

// authTransport decorates every outgoing request: bearer token, JSON
// content type and a request id. A 401 answer fires onUnauthorized.
type authTransport struct {
	base           http.RoundTripper
	tokens         TokenSource
	onUnauthorized func()
	log            logrus.FieldLogger
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())

	if t.tokens != nil && !isAuthPath(req.URL.Path) {
		if token, ok := t.tokens.CurrentToken(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if req.Method != http.MethodGet && req.Method != http.MethodDelete {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	log := t.log.WithFields(logrus.Fields{
		"method":     req.Method,
		"path":       req.URL.Path,
		"status":     resp.StatusCode,
		"request_id": req.Header.Get("X-Request-ID"),
	})
	log.Debug("backend request")

	if resp.StatusCode == http.StatusUnauthorized && t.onUnauthorized != nil {
		log.Warn("backend rejected the session")
		t.onUnauthorized()
	}
	return resp, nil
}
