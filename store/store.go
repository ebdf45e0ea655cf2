// Package store defines the abstract Value Store contract: a typed
// (domain, key) value map with blob-file side effects and cross-kind-change
// cleanup. The concrete SQLite-backed implementation lives in the sibling
// sqlitestore package, grounded on original_source/server/database.c.
package store

import "krypt.co/registry/errcode"

// Kind discriminates the four value kinds a (domain, key) entry may hold.
// Numeric values match the GET_VALUE_TYPE reply payload the dispatcher
// sends on the wire.
type Kind int64

const (
	KindInt64  Kind = 0
	KindDouble Kind = 1
	KindString Kind = 2
	KindBlob   Kind = 3
)

// Store is the Value Store collaborator. Every Set method upserts, clearing
// any value previously stored under a different kind at the same key; every
// Get method returns DATABASE_NO_SUCH_KEY if the (domain, key) pair does not
// exist and DATABASE_TYPE_MISMATCH if it exists under a different kind.
type Store interface {
	GetInt(domain, key string) (int64, error)
	SetInt(domain, key string, value int64) error

	GetDouble(domain, key string) (float64, error)
	SetDouble(domain, key string, value float64) error

	GetString(domain, key string) (string, error)
	SetString(domain, key string, value string) error

	GetBlob(domain, key string) ([]byte, error)
	SetBlob(domain, key string, value []byte) error

	GetType(domain, key string) (Kind, error)

	// EnumKeys returns the keys in domain matching pattern (a shell-glob
	// pattern: '*', '?', bracket classes), sorted ascending.
	EnumKeys(domain, pattern string) ([]string, error)

	Close() error
}

func errNoSuchKey() error {
	return errcode.New(errcode.DATABASE_NO_SUCH_KEY, errcode.KindNoSuchKey, "store: no such key")
}

func errTypeMismatch() error {
	return errcode.New(errcode.DATABASE_TYPE_MISMATCH, errcode.KindTypeMismatch, "store: type mismatch")
}

func errArgument(msg string) error {
	return errcode.New(errcode.INVALID_ARGUMENTS, errcode.KindArgument, msg)
}

func errIO(msg string) error {
	return errcode.New(errcode.DATABASE_IO, errcode.KindInvalidState, msg)
}

func errInvalidState(msg string) error {
	return errcode.New(errcode.DATABASE_INVALID, errcode.KindInvalidState, msg)
}
