package storage

import "errors"

// ErrNotFound is returned when a requested key does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface behind the auth and device layers.
// Values are opaque strings; structured records are JSON-encoded by the
// caller. Two implementations exist: BoltStore for durable panel state
// and MemStore for volatile session state.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(key string) (string, error)

	// Set writes the value for key, creating or overwriting it.
	Set(key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Close the store.
	Close() error
}

// Keys used by the panel. The isLoggedIn flag lives only in a MemStore so
// it does not survive a restart; everything else is durable.
const (
	KeyAccessToken  = "access_token"
	KeyUserInfo     = "user_info"
	KeyIsLoggedIn   = "isLoggedIn"
	KeyLocalDevices = "local_devices"
	KeyLocalPresets = "local_presets"
)
