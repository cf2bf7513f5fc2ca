// Package app owns the long-lived components of one atask process.
package app

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"atask/internal/auth"
	"atask/internal/backend/httpapi"
	"atask/internal/config"
	"atask/internal/kvstore"
	"atask/internal/service"
	"atask/internal/session"
	"atask/internal/tasks"
)

// App is the explicit context object handed to commands. There are no
// package-level singletons: everything a command touches hangs off App.
type App struct {
	Config  *config.Config
	Log     logrus.FieldLogger
	KV      kvstore.Store
	Session *session.Store
	API     service.Service
	Auth    *auth.Flows
	Tasks   *tasks.Controller

	expired atomic.Bool
}

// New opens storage, restores the session and connects to the backend at
// cfg.APIURL.
func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	if cfg.Storage != kvstore.DriverRedis {
		if err := cfg.EnsureDir(); err != nil {
			return nil, fmt.Errorf("create config dir: %w", err)
		}
	}

	kv, err := kvstore.Open(ctx, kvstore.Options{
		Driver:     cfg.Storage,
		Dir:        cfg.Dir,
		SQLitePath: cfg.SQLitePath,
		RedisURL:   cfg.RedisURL,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage, err)
	}

	sess, err := session.New(ctx, kv, log)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("restore session: %w", err)
	}

	a := &App{Config: cfg, Log: log, KV: kv, Session: sess}
	api, err := httpapi.New(httpapi.Options{
		BaseURL:        cfg.APIURL,
		Timeout:        cfg.RequestTimeout,
		Tokens:         sess,
		OnUnauthorized: a.onUnauthorized,
		Log:            log,
	})
	if err != nil {
		kv.Close()
		return nil, err
	}
	a.wire(api)
	return a, nil
}

// Assemble builds an App over an existing store, session and backend.
func Assemble(cfg *config.Config, log logrus.FieldLogger, kv kvstore.Store, sess *session.Store, svc service.Service) *App {
	a := &App{Config: cfg, Log: log, KV: kv, Session: sess}
	a.wire(svc)
	return a
}

func (a *App) wire(svc service.Service) {
	a.API = svc
	a.Auth = auth.New(svc, a.Session, a.Log)
	a.Tasks = tasks.New(svc, a.Session, a.Log, tasks.WithLoadTimeout(a.Config.LoadTimeout))
}

// onUnauthorized signs the user out when the backend rejects the token.
func (a *App) onUnauthorized() {
	if a.Session.Current() == nil {
		return
	}
	a.expired.Store(true)
	a.Log.Warn("backend rejected the session token, signing out")
	if err := a.Session.Clear(context.Background()); err != nil {
		a.Log.WithError(err).Error("failed to clear session")
	}
}

// SessionExpired reports whether a 401 forced a sign-out during this run.
func (a *App) SessionExpired() bool {
	return a.expired.Load()
}

// Close waits for background reloads, stops the controller and releases
// storage.
func (a *App) Close() error {
	a.Tasks.Wait()
	a.Tasks.Close()
	return a.KV.Close()
}
