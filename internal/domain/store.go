package domain

// KVStore is the persistent string key-value store the offline core runs on.
// Values are JSON documents under namespaced keys (<prefix>_<userId>_<suffix>).
// Implementations must be safe for concurrent use.
type KVStore interface {
	// Get returns the value for key and whether it exists.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	// Remove deletes key; removing a missing key is not an error.
	Remove(key string) error
	// Keys returns every key in the store.
	Keys() ([]string, error)

	Close() error
}
