package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

func init() {
	// Load env from .env
	godotenv.Load()
	// Do NOT open the database in init(); the HTTP surface must come up even
	// when the store file is temporarily unreadable (LocalStorageWriteError
	// policy: in-memory state stays authoritative for the session).
}

// LocalDBPath returns the on-device store file. Each device carries exactly
// one file shared by every tenant; isolation happens at the key level, not
// the file level.
func LocalDBPath() string {
	path := strings.TrimSpace(os.Getenv("POS_SYNC_DB_PATH"))
	if path == "" {
		path = "pos_sync.db"
	}
	return path
}

// ConnectLocalDBWithRetry opens the device-local SQLite store and sets the
// global DB. main() calls this before starting the HTTP server; when every
// attempt fails the DB stays nil and the engine runs in-memory only.
func ConnectLocalDBWithRetry() {
	dsn := LocalDBPath() + "?_busy_timeout=5000&_journal_mode=WAL"

	var attempt int
	for {
		attempt++
		var err error
		db, err = gorm.Open(sqlite.Open(dsn), initConfig())
		if err == nil {
			// SQLite serializes writers; a single connection avoids
			// SQLITE_BUSY churn between the HTTP surface and drain passes.
			if sqlDB, derr := db.DB(); derr == nil && sqlDB != nil {
				sqlDB.SetMaxOpenConns(intFromEnv("DB_MAX_OPEN_CONNS", 1))
				sqlDB.SetConnMaxIdleTime(time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second)
			}
			if pluginErr := db.Use(NewTenantGuardPlugin()); pluginErr != nil {
				log.Printf("db opened but failed to install tenant guard plugin: %v", pluginErr)
			}
			log.Printf("opened local store (attempt=%d path=%s)", attempt, LocalDBPath())
			return
		}

		if attempt >= intFromEnv("DB_OPEN_MAX_ATTEMPTS", 5) {
			// Keep running without durability rather than refusing to start.
			log.Printf("giving up opening local store after %d attempts: %v; continuing in-memory only", attempt, err)
			db = nil
			return
		}

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to open local store (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		time.Sleep(sleep)
	}
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: initNamingStrategy(),
	}
}

func initLog() logger.Interface {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
	return newLogger
}

func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}
