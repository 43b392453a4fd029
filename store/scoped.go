package store

import (
	"context"
	"strings"
	"sync"

	"github.com/mmdatafocus/pos_sync/config"
	"github.com/mmdatafocus/pos_sync/models"
	"github.com/mmdatafocus/pos_sync/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the namespaced key/value layer every outbox and cache routes
// through. The in-memory map is authoritative for the current session;
// each write is persisted best-effort into the kv_entries table. A failed
// persist is logged and ignored (accepted risk: loss on process restart).
//
// The local store file is shared, unlocked, across concurrent processes on
// the same device. Concurrent writers are last-writer-wins; no cross-process
// lock is taken.
type Store struct {
	mu     sync.Mutex
	mem    map[string][]byte
	db     *gorm.DB
	logger *logrus.Logger

	// migrateLegacy enables the one-time forward-copy of pre-scoping keys.
	migrateLegacy bool
}

func NewStore(db *gorm.DB, logger *logrus.Logger) *Store {
	s := &Store{
		mem:           make(map[string][]byte),
		db:            db,
		logger:        logger,
		migrateLegacy: config.LegacyKeyMigration(),
	}
	s.loadFromDB()
	return s
}

func (s *Store) loadFromDB() {
	if s.db == nil {
		return
	}
	var entries []models.KvEntry
	ctx := utils.SetSkipTenantScopeInContext(context.Background(), true)
	if err := s.db.WithContext(ctx).Find(&entries).Error; err != nil {
		config.LogError(s.logger, "store", "loadFromDB", "loading kv_entries", nil, err)
		return
	}
	for _, e := range entries {
		s.mem[e.ScopeKey] = e.Value
	}
}

// Read looks up baseKey under scope. On a miss with a resolved scope and
// migration enabled, it falls back to the legacy unscoped key and, when
// found, copies the value forward under the scoped key (non-destructive)
// before returning it.
func (s *Store) Read(scope TenantScope, baseKey string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scope.Key(baseKey)
	if v, ok := s.mem[key]; ok {
		return v, true
	}
	if !scope.IsZero() && s.migrateLegacy {
		if v, ok := s.mem[baseKey]; ok {
			s.mem[key] = v
			s.persist(key, v)
			return v, true
		}
	}
	return nil, false
}

func (s *Store) Write(scope TenantScope, baseKey string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scope.Key(baseKey)
	s.mem[key] = value
	s.persist(key, value)
}

func (s *Store) Remove(scope TenantScope, baseKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scope.Key(baseKey)
	delete(s.mem, key)
	s.remove(key)
}

// RemoveAcrossScopes deletes the unscoped key and every tenant's
// ":{baseKey}" entry on this device. Used during logout/session teardown so
// one tenant's queued data can never surface under another tenant's session.
func (s *Store) RemoveAcrossScopes(baseKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	suffix := ":" + baseKey
	for key := range s.mem {
		if key == baseKey || strings.HasSuffix(key, suffix) {
			delete(s.mem, key)
			s.remove(key)
		}
	}
}

// ScopedKeys returns every stored key ending in baseKey, across all tenants.
// Operator tooling only.
func (s *Store) ScopedKeys(baseKey string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	suffix := ":" + baseKey
	var keys []string
	for key := range s.mem {
		if key == baseKey || strings.HasSuffix(key, suffix) {
			keys = append(keys, key)
		}
	}
	return keys
}

// persist writes through to the durable table. Callers hold s.mu.
func (s *Store) persist(key string, value []byte) {
	if s.db == nil {
		return
	}
	ctx := utils.SetSkipTenantScopeInContext(context.Background(), true)
	entry := models.KvEntry{ScopeKey: key, Value: value}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&entry).Error
	if err != nil {
		// In-memory state stays authoritative for this session.
		config.LogError(s.logger, "store", "persist", "writing "+key, nil, err)
	}
}

func (s *Store) remove(key string) {
	if s.db == nil {
		return
	}
	ctx := utils.SetSkipTenantScopeInContext(context.Background(), true)
	err := s.db.WithContext(ctx).
		Where("scope_key = ?", key).
		Delete(&models.KvEntry{}).Error
	if err != nil {
		config.LogError(s.logger, "store", "remove", "removing "+key, nil, err)
	}
}

// ReadJSON unmarshals the stored value for baseKey into out. Returns false
// on a miss or a corrupt value (corrupt values are dropped, not surfaced).
func ReadJSON[T any](s *Store, scope TenantScope, baseKey string, out *T) bool {
	raw, ok := s.Read(scope, baseKey)
	if !ok {
		return false
	}
	if err := utils.UnmarshalFromJSON(raw, out); err != nil {
		config.LogError(s.logger, "store", "ReadJSON", "decoding "+baseKey, nil, err)
		return false
	}
	return true
}

func WriteJSON[T any](s *Store, scope TenantScope, baseKey string, value T) error {
	raw, err := utils.MarshalToJSON(value)
	if err != nil {
		return err
	}
	s.Write(scope, baseKey, raw)
	return nil
}
