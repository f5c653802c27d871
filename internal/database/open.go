package database

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open 按 DSN 选择驱动并打开连接。
//
// 识别规则：
//   - 空 DSN：共享内存 SQLite（测试与演练）
//   - postgres:// / postgresql:// 前缀或 host= 键值对：PostgreSQL
//   - mysql:// 前缀或 @tcp( 片段：MySQL
//   - 其余：SQLite 文件路径
func Open(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialector, driver := dialectorFor(dsn)
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	logger.Info("database opened", zap.String("driver", driver))
	return db, nil
}

func dialectorFor(dsn string) (gorm.Dialector, string) {
	switch {
	case dsn == "":
		return sqlite.Open("file::memory:?cache=shared"), "sqlite"
	case strings.HasPrefix(dsn, "postgres://"),
		strings.HasPrefix(dsn, "postgresql://"),
		strings.Contains(dsn, "host="):
		return postgres.Open(dsn), "postgres"
	case strings.HasPrefix(dsn, "mysql://"):
		return mysql.Open(strings.TrimPrefix(dsn, "mysql://")), "mysql"
	case strings.Contains(dsn, "@tcp("):
		return mysql.Open(dsn), "mysql"
	default:
		return sqlite.Open(dsn), "sqlite"
	}
}
