// file: internal/service/db_init.go
package service

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// OpenDatabase 打开（必要时创建）平台的 SQLite 数据库文件。
// 连接数限制为 1，所有写入在同一连接上串行执行。
func OpenDatabase(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开/创建数据库 '%s' 失败: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("连接数据库 '%s' (Ping) 失败: %w", path, err)
	}
	return db, nil
}

// InitPlatformTables 负责在系统启动时，检查并创建所有平台级的表。
func InitPlatformTables(db *sql.DB) error {
	if err := initCacheTable(db); err != nil {
		return fmt.Errorf("初始化缓存表失败: %w", err)
	}
	if err := initAlgorithmConfigTable(db); err != nil {
		return fmt.Errorf("初始化评分配置表失败: %w", err)
	}

	slog.Info("数据库: 所有系统表结构初始化/检查完成。")
	return nil
}

// initCacheTable 创建元数据缓存表。stored_at 为 UnixNano。
func initCacheTable(db *sql.DB) error {
	query := `
    CREATE TABLE IF NOT EXISTS cache_entries (
        kind TEXT NOT NULL,
        cache_key TEXT NOT NULL,
        payload BLOB NOT NULL,
        stored_at INTEGER NOT NULL,
        ttl_seconds INTEGER NOT NULL,
        PRIMARY KEY (kind, cache_key)
    );`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("创建 'cache_entries' 表失败: %w", err)
	}
	// 清理任务按过期时间扫描
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_cache_entries_stored ON cache_entries (stored_at);`)
	return err
}

// initAlgorithmConfigTable 创建评分配置表，只有 id=1 一行
func initAlgorithmConfigTable(db *sql.DB) error {
	query := `
    CREATE TABLE IF NOT EXISTS algorithm_config (
        id INTEGER PRIMARY KEY CHECK (id = 1),
        revision INTEGER NOT NULL,
        payload TEXT NOT NULL,
        updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("创建 'algorithm_config' 表失败: %w", err)
	}
	return nil
}
