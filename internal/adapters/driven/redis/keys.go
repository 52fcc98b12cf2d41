// Package redis holds the Redis-backed embedding cache and distributed lock.
package redis

// DefaultKeyPrefix namespaces every key this service writes.
const DefaultKeyPrefix = "scm:"
