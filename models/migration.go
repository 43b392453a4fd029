package models

import "gorm.io/gorm"

// MigrateTable creates/updates the local store tables. Safe to call on every
// start; the engine keeps running in memory when it fails.
func MigrateTable(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	return db.AutoMigrate(
		&KvEntry{},
		&ExpenseRecord{},
	)
}
