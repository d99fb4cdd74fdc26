package store

import (
	"strings"

	"github.com/mmcdole/brewsync/internal/domain"
)

// Key prefixes. Every key is <prefix>_<userId>_<suffix> so one user's data
// never leaks into another's.
const (
	PrefixCache     = "cache"
	PrefixQueue     = "queue"
	PrefixMeta      = "meta"
	PrefixReference = "reference"
)

var userEscaper = strings.NewReplacer("%", "%25", "_", "%5F")

// Key builds a namespaced key. Underscores in userID are escaped so one
// user's prefix never matches another user's keys.
func Key(prefix, userID string, parts ...string) string {
	return prefix + "_" + userEscaper.Replace(userID) + "_" + strings.Join(parts, "_")
}

// CacheKey is the snapshot key for one user's entities of entityType.
func CacheKey(userID string, entityType domain.EntityType) string {
	return Key(PrefixCache, userID, string(entityType))
}

// UserPrefixes returns every key prefix owned by userID.
func UserPrefixes(userID string) []string {
	u := userEscaper.Replace(userID)
	return []string{
		PrefixCache + "_" + u + "_",
		PrefixQueue + "_" + u + "_",
		PrefixMeta + "_" + u + "_",
		PrefixReference + "_" + u + "_",
	}
}

// ClearUser removes every key owned by userID.
func ClearUser(kv domain.KVStore, userID string) error {
	for _, prefix := range UserPrefixes(userID) {
		if err := RemovePrefix(kv, prefix); err != nil {
			return err
		}
	}
	return nil
}
