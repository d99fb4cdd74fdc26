package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mmcdole/brewsync/internal/domain"
)

// Driver names accepted by Open.
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Open returns the KV backend named by driver.
func Open(driver, baseDir, serverURL string) (domain.KVStore, error) {
	switch strings.ToLower(driver) {
	case "", DriverBolt:
		return NewBoltStore(baseDir, serverURL)
	case DriverSQLite:
		return NewSQLiteStore(baseDir, serverURL)
	case DriverMemory:
		return NewBoltStore("", "")
	default:
		return nil, fmt.Errorf("unknown store driver: %s", driver)
	}
}

// prefixRemover is implemented by backends that can drop a key range natively.
type prefixRemover interface {
	RemovePrefix(prefix string) error
}

// RemovePrefix deletes every key in kv that starts with prefix.
func RemovePrefix(kv domain.KVStore, prefix string) error {
	if pr, ok := kv.(prefixRemover); ok {
		return pr.RemovePrefix(prefix)
	}
	keys, err := kv.Keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			if err := kv.Remove(k); err != nil {
				return err
			}
		}
	}
	return nil
}

// batchSetter is implemented by backends that can write several keys atomically.
type batchSetter interface {
	SetMany(values map[string]string) error
}

// SetMany writes every pair in values, atomically when the backend supports
// it. Other backends get sequential Sets in key order.
func SetMany(kv domain.KVStore, values map[string]string) error {
	if bs, ok := kv.(batchSetter); ok {
		return bs.SetMany(values)
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := kv.Set(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}
