package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"thai-lotto-bot/internal/config"
	"thai-lotto-bot/internal/logger"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// dialect 不同数据库的SQL差异
type dialect struct {
	name       string
	schema     []string
	upsertDraw string
}

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS lottery_draws (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			draw_date CHAR(10) NOT NULL COMMENT '开奖日期',
			day_of_week VARCHAR(10) NOT NULL COMMENT '星期',
			day_of_month TINYINT NOT NULL,
			month TINYINT NOT NULL,
			first_prize CHAR(6) NULL COMMENT '一等奖',
			first_prize_last3 CHAR(3) NULL,
			three_front CHAR(3) NULL COMMENT '前三位',
			three_back CHAR(3) NULL COMMENT '后三位',
			last2 CHAR(2) NULL COMMENT '后两位',
			created_at VARCHAR(19) NOT NULL,
			updated_at VARCHAR(19) NOT NULL,
			UNIQUE KEY uk_draw_date (draw_date),
			INDEX idx_day_of_week (day_of_week),
			INDEX idx_day_of_month (day_of_month),
			INDEX idx_month (month)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci COMMENT='开奖数据表'`,
		`CREATE TABLE IF NOT EXISTS predictions (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id CHAR(36) NOT NULL,
			digit_type VARCHAR(20) NOT NULL,
			target_date CHAR(10) NOT NULL COMMENT '目标开奖日期',
			predicted_value VARCHAR(6) NOT NULL,
			confidence DOUBLE NOT NULL,
			rank_no INT NOT NULL,
			method VARCHAR(20) NOT NULL,
			was_correct TINYINT(1) NULL COMMENT '是否命中',
			created_at VARCHAR(19) NOT NULL,
			INDEX idx_target (target_date, digit_type, method),
			INDEX idx_run_id (run_id),
			INDEX idx_was_correct (was_correct)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci COMMENT='预测记录表'`,
		`CREATE TABLE IF NOT EXISTS accuracy_records (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			period_start CHAR(10) NOT NULL,
			period_end CHAR(10) NOT NULL,
			prediction_method VARCHAR(20) NOT NULL,
			total_predictions INT NOT NULL,
			correct_predictions INT NOT NULL,
			accuracy_percentage DOUBLE NOT NULL,
			evaluated_at VARCHAR(19) NOT NULL,
			INDEX idx_period_end (period_end)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci COMMENT='准确率记录表'`,
		`CREATE TABLE IF NOT EXISTS analysis_history (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id CHAR(36) NOT NULL,
			calculation_type VARCHAR(50) NOT NULL,
			parameters TEXT NOT NULL,
			result_summary TEXT NOT NULL,
			created_at VARCHAR(19) NOT NULL,
			INDEX idx_run_id (run_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci COMMENT='分析历史表'`,
	},
	upsertDraw: `INSERT INTO lottery_draws (draw_date, day_of_week, day_of_month, month, first_prize,
			first_prize_last3, three_front, three_back, last2, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			day_of_week = VALUES(day_of_week),
			day_of_month = VALUES(day_of_month),
			month = VALUES(month),
			first_prize = VALUES(first_prize),
			first_prize_last3 = VALUES(first_prize_last3),
			three_front = VALUES(three_front),
			three_back = VALUES(three_back),
			last2 = VALUES(last2),
			updated_at = VALUES(updated_at)`,
}

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS lottery_draws (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			draw_date TEXT NOT NULL UNIQUE,
			day_of_week TEXT NOT NULL,
			day_of_month INTEGER NOT NULL,
			month INTEGER NOT NULL,
			first_prize TEXT NULL,
			first_prize_last3 TEXT NULL,
			three_front TEXT NULL,
			three_back TEXT NULL,
			last2 TEXT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_draws_day_of_week ON lottery_draws(day_of_week)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			digit_type TEXT NOT NULL,
			target_date TEXT NOT NULL,
			predicted_value TEXT NOT NULL,
			confidence REAL NOT NULL,
			rank_no INTEGER NOT NULL,
			method TEXT NOT NULL,
			was_correct INTEGER NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_target ON predictions(target_date, digit_type, method)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_run_id ON predictions(run_id)`,
		`CREATE TABLE IF NOT EXISTS accuracy_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			period_start TEXT NOT NULL,
			period_end TEXT NOT NULL,
			prediction_method TEXT NOT NULL,
			total_predictions INTEGER NOT NULL,
			correct_predictions INTEGER NOT NULL,
			accuracy_percentage REAL NOT NULL,
			evaluated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS analysis_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			calculation_type TEXT NOT NULL,
			parameters TEXT NOT NULL,
			result_summary TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_run_id ON analysis_history(run_id)`,
	},
	upsertDraw: `INSERT INTO lottery_draws (draw_date, day_of_week, day_of_month, month, first_prize,
			first_prize_last3, three_front, three_back, last2, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(draw_date) DO UPDATE SET
			day_of_week = excluded.day_of_week,
			day_of_month = excluded.day_of_month,
			month = excluded.month,
			first_prize = excluded.first_prize,
			first_prize_last3 = excluded.first_prize_last3,
			three_front = excluded.three_front,
			three_back = excluded.three_back,
			last2 = excluded.last2,
			updated_at = excluded.updated_at`,
}

// DB 数据库客户端，生产环境使用MySQL，本地与测试使用SQLite
type DB struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// Open 按配置的驱动打开数据库
func Open(ctx context.Context, cfg *config.Database) (*DB, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLiteDB(ctx, cfg.Path)
	case "mysql", "":
		return NewMySQLDB(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// NewMySQLDB 创建新的MySQL数据库连接
func NewMySQLDB(ctx context.Context, cfg *config.Database) (*DB, error) {
	db, err := sql.Open("mysql", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 设置连接池参数
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return initDB(ctx, db, mysqlDialect)
}

// NewSQLiteDB 创建SQLite数据库，path 可以是 ":memory:"
func NewSQLiteDB(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// 单连接：内存库每个连接都是独立实例，文件库避免写锁竞争
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `pragma journal_mode=WAL; pragma busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite pragmas: %w", err)
	}

	return initDB(ctx, db, sqliteDialect)
}

func initDB(ctx context.Context, db *sql.DB, d dialect) (*DB, error) {
	// 测试连接
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &DB{db: db, dialect: d, now: time.Now}

	// 自动创建表结构
	if err := store.createTablesIfNotExists(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.WithComponent("database").WithField("driver", d.name).Debug("Database ready")
	return store, nil
}

// Close 关闭数据库连接
func (s *DB) Close() error {
	return s.db.Close()
}

// Ping 健康检查
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver 当前驱动名
func (s *DB) Driver() string {
	return s.dialect.name
}

// createTablesIfNotExists 自动创建表结构
func (s *DB) createTablesIfNotExists(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
