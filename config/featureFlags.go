package config

import (
	"os"
	"strings"
	"time"
)

// LegacyKeyMigration controls the one-time forward-copy of pre-tenant-scoping
// keys into the scoped namespace. Devices upgraded from the single-tenant
// build rely on this; fresh installs can turn it off.
//
// Set via env:
// - MIGRATE_LEGACY_KEYS=false
func LegacyKeyMigration() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("MIGRATE_LEGACY_KEYS")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// DirectSubmit controls the optimistic online-first checkout path. When
// disabled, every sale goes straight to the outbox and waits for a drain.
//
// Set via env:
// - OFFLINE_DIRECT_SUBMIT=false
func DirectSubmit() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("OFFLINE_DIRECT_SUBMIT")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// SyncFallbackInterval is the periodic sync timer used where connectivity
// events are unreliable. Only armed while pending work exists.
//
// Set via env:
// - SYNC_FALLBACK_INTERVAL_SECONDS (default 30)
func SyncFallbackInterval() time.Duration {
	return time.Duration(intFromEnv("SYNC_FALLBACK_INTERVAL_SECONDS", 30)) * time.Second
}

// ConnectivityPollInterval drives the online/offline watcher.
//
// Set via env:
// - CONNECTIVITY_POLL_INTERVAL_SECONDS (default 15)
func ConnectivityPollInterval() time.Duration {
	return time.Duration(intFromEnv("CONNECTIVITY_POLL_INTERVAL_SECONDS", 15)) * time.Second
}

// OrdersCacheLimit caps the locally persisted reporting cache (most-recent
// rows kept).
//
// Set via env:
// - ORDERS_CACHE_LIMIT (default 3000)
func OrdersCacheLimit() int {
	return intFromEnv("ORDERS_CACHE_LIMIT", 3000)
}
