// Package kv provides the durable key-value substrate behind the local
// record store. Values are opaque byte slices; callers own the encoding.
package kv

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("kv: key not found")

// Store is a minimal durable key-value map.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Transactor is implemented by substrates that can run a read-modify-write
// cycle atomically with respect to other processes sharing the data.
type Transactor interface {
	Tx(ctx context.Context, fn func(Store) error) error
}

// Driver names accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Options selects and configures a substrate.
type Options struct {
	Driver   string
	Path     string // sqlite database file
	RedisURL string // redis://host:port/db
	Prefix   string // redis key namespace
}

// Open constructs the substrate named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		return NewSQLite(opts.Path)
	case DriverRedis:
		return NewRedis(ctx, opts.RedisURL, opts.Prefix)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown kv driver %q", opts.Driver)
	}
}
