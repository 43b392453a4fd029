package models

import "time"

// KvEntry is the persisted form of the scoped key/value store. The full
// namespaced key (tenant:{businessId}:user:{userId}:{baseKey}, or the bare
// baseKey for unscoped entries) is the primary key; tenant isolation lives
// in the key itself.
type KvEntry struct {
	ScopeKey  string    `gorm:"primaryKey;size:512" json:"scope_key"`
	Value     []byte    `gorm:"type:blob" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
