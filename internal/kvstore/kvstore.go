// Package kvstore provides the small durable key-value storage the session
// persists into.
package kvstore

import (
	"context"
	"fmt"
)

// Drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Store is a string key-value store.
type Store interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes a value.
	Set(ctx context.Context, key, value string) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the underlying resources.
	Close() error
}

// Options selects and configures a driver.
type Options struct {
	Driver     string
	Dir        string // file driver
	SQLitePath string // sqlite driver
	RedisURL   string // redis driver
}

// Open opens the store for the configured driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverFile:
		return NewFileStore(opts.Dir), nil
	case DriverSQLite:
		s, err := OpenSQLite(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverRedis:
		s, err := OpenRedis(ctx, opts.RedisURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", opts.Driver)
	}
}
