// Package core owns the SQLite-backed database connection shared by the
// reconciliation engine, the audit log, and the CLI. All schema, seed data
// and hot-reloadable configuration live in SQLite.
package core

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	_ "modernc.org/sqlite"
)

// Engine wraps *sql.DB with hot-reload capability for engine configuration.
type Engine struct {
	db       *sql.DB
	dbPath   string
	mu       sync.RWMutex
	watchers []func(event string)
	ctx      context.Context
	cancel   context.CancelFunc

	configVersion int64
	reloadCh      chan struct{}
}

// NewEngine opens (creating if necessary) the database at dbPath. An empty
// dbPath creates a session-scoped database under .lldhost/.
func NewEngine(dbPath string) (*Engine, error) {
	if dbPath == "" {
		dir := ".lldhost"
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		dbPath = filepath.Join(dir, fmt.Sprintf("run_%s.db", timestamp))
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		db:       db,
		dbPath:   dbPath,
		ctx:      ctx,
		cancel:   cancel,
		reloadCh: make(chan struct{}, 1),
	}

	if err := e.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	go e.watchConfig()

	return e, nil
}

// DB returns the underlying connection pool for direct queries.
func (e *Engine) DB() *sql.DB { return e.db }

// Path returns the database file path.
func (e *Engine) Path() string { return e.dbPath }

// initSchema creates every table the reconciliation engine and its
// supporting components (config, audit log) need, if not already present.
func (e *Engine) initSchema() error {
	schema := `
	-- ============================================================
	-- CONFIG: hot-reloadable engine configuration
	-- ============================================================
	CREATE TABLE IF NOT EXISTS config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		type TEXT DEFAULT 'string' CHECK (type IN ('string', 'int', 'bool', 'json')),
		description TEXT,
		updated_at INTEGER DEFAULT (strftime('%s', 'now')),
		version INTEGER DEFAULT 1
	);

	CREATE TRIGGER IF NOT EXISTS config_version_bump
	AFTER UPDATE ON config
	BEGIN
		UPDATE config SET version = version + 1, updated_at = strftime('%s', 'now') WHERE key = NEW.key;
	END;

	INSERT OR IGNORE INTO config (key, value, type, description) VALUES
	('default_lifetime_days', '30', 'int', 'Days an undiscovered host survives before deletion'),
	('hostname_charset', '', 'string', 'Override for the technical-name character set, as a range list such as 0-9a-zA-Z_. -; empty means the built-in predicate'),
	('host_name_len', '128', 'int', 'Maximum length, in UTF-8 characters, of a visible host name');

	-- ============================================================
	-- RECONCILIATION SCHEMA (hosts, discovery bookkeeping, relations)
	-- ============================================================
	CREATE TABLE IF NOT EXISTS hosts (
		hostid INTEGER PRIMARY KEY,
		host TEXT NOT NULL,
		name TEXT NOT NULL,
		proxy_hostid INTEGER,
		ipmi_authtype INTEGER NOT NULL DEFAULT -1,
		ipmi_privilege INTEGER NOT NULL DEFAULT 2,
		ipmi_username TEXT NOT NULL DEFAULT '',
		ipmi_password TEXT NOT NULL DEFAULT '',
		status INTEGER NOT NULL DEFAULT 0,
		flags INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS host_discovery (
		hostid INTEGER PRIMARY KEY,
		parent_hostid INTEGER NOT NULL,
		host TEXT NOT NULL,
		lastcheck INTEGER NOT NULL DEFAULT 0,
		ts_delete INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS host_inventory (
		hostid INTEGER PRIMARY KEY,
		inventory_mode INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS hosts_groups (
		hostgroupid INTEGER PRIMARY KEY,
		hostid INTEGER NOT NULL,
		groupid INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS hostmacro (
		hostmacroid INTEGER PRIMARY KEY,
		hostid INTEGER NOT NULL,
		macro TEXT NOT NULL,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS interface (
		interfaceid INTEGER PRIMARY KEY,
		hostid INTEGER NOT NULL,
		type INTEGER NOT NULL,
		main INTEGER NOT NULL,
		useip INTEGER NOT NULL,
		ip TEXT NOT NULL DEFAULT '',
		dns TEXT NOT NULL DEFAULT '',
		port TEXT NOT NULL DEFAULT ''
	);

	-- A host prototype belongs to one LLD rule (lld_ruleid, itself a row in
	-- items) and owns its own group/template/inventory configuration,
	-- independent of the parent host that the rule's itemid resolves to.
	CREATE TABLE IF NOT EXISTS host_prototype (
		hostid INTEGER PRIMARY KEY,
		lld_ruleid INTEGER NOT NULL,
		host_proto TEXT NOT NULL,
		name_proto TEXT NOT NULL,
		status INTEGER NOT NULL DEFAULT 0,
		inventory_mode INTEGER NOT NULL DEFAULT -1
	);

	CREATE TABLE IF NOT EXISTS group_prototype (
		group_prototypeid INTEGER PRIMARY KEY,
		hostid INTEGER NOT NULL,
		groupid INTEGER
	);

	CREATE TABLE IF NOT EXISTS hosts_templates (
		hosttemplateid INTEGER PRIMARY KEY,
		hostid INTEGER NOT NULL,
		templateid INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS group_discovery (
		groupid INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS items (
		itemid INTEGER PRIMARY KEY,
		hostid INTEGER NOT NULL
	);

	-- Monotonic id allocator, one row per table, mirroring DBget_maxid_num.
	CREATE TABLE IF NOT EXISTS ids (
		table_name TEXT PRIMARY KEY,
		nextid INTEGER NOT NULL DEFAULT 1
	);

	-- ============================================================
	-- AUDIT: one row per engine invocation, plus its diagnostic lines
	-- ============================================================
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		lld_ruleid INTEGER NOT NULL,
		started_at INTEGER DEFAULT (strftime('%s', 'now')),
		finished_at INTEGER,
		hosts_created INTEGER DEFAULT 0,
		hosts_updated INTEGER DEFAULT 0,
		hosts_deleted INTEGER DEFAULT 0,
		error_count INTEGER DEFAULT 0,
		metadata TEXT DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS run_diagnostics (
		diag_id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		line TEXT NOT NULL,
		created_at INTEGER DEFAULT (strftime('%s', 'now')),

		FOREIGN KEY(run_id) REFERENCES runs(run_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_run_diagnostics_run ON run_diagnostics(run_id, created_at);
	`

	_, err := e.db.Exec(schema)
	return err
}

// watchConfig polls the config table's version column for hot-reload.
func (e *Engine) watchConfig() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			var maxVersion int64
			if err := e.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM config").Scan(&maxVersion); err != nil {
				continue
			}
			if maxVersion > e.configVersion {
				e.configVersion = maxVersion
				e.notifyWatchers("config_changed")
				select {
				case e.reloadCh <- struct{}{}:
				default:
				}
			}
		}
	}
}

// OnChange registers a callback invoked whenever hot-reloadable config changes.
func (e *Engine) OnChange(fn func(event string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.watchers = append(e.watchers, fn)
}

func (e *Engine) notifyWatchers(event string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, fn := range e.watchers {
		go fn(event)
	}
}

// ReloadCh signals whenever config changes.
func (e *Engine) ReloadCh() <-chan struct{} { return e.reloadCh }

// GetConfig retrieves a raw config value; "" if absent.
func (e *Engine) GetConfig(key string) (string, error) {
	var value string
	err := e.db.QueryRow("SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetConfig sets a config value, bumping its hot-reload version.
func (e *Engine) SetConfig(key, value string) error {
	_, err := e.db.Exec(`
		INSERT INTO config (key, value, updated_at) VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = strftime('%s', 'now'), version = version + 1
	`, key, value)
	return err
}

// GetConfigInt retrieves an integer config value, 0 if absent or malformed.
func (e *Engine) GetConfigInt(key string) int {
	val, _ := e.GetConfig(key)
	var i int
	fmt.Sscanf(val, "%d", &i)
	return i
}

// Close shuts the engine down, checkpointing the WAL first.
func (e *Engine) Close() error {
	e.cancel()
	_, _ = e.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return e.db.Close()
}

// WatchFile watches an external override file (e.g. a filter/lifetime
// override pushed by a deployment tool) and invokes callback on write.
func (e *Engine) WatchFile(path string, callback func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-e.ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					callback()
				}
			case <-watcher.Errors:
			}
		}
	}()

	return watcher.Add(path)
}

// Exec runs a statement and returns the number of affected rows.
func (e *Engine) Exec(query string, args ...interface{}) (int64, error) {
	result, err := e.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Query runs a query and returns the resulting rows.
func (e *Engine) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return e.db.Query(query, args...)
}

// QueryRow runs a query expected to return a single row.
func (e *Engine) QueryRow(query string, args ...interface{}) *sql.Row {
	return e.db.QueryRow(query, args...)
}
