package store

import (
	"errors"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// cacheRow is the relational layout of a Record.
type cacheRow struct {
	Key       string `gorm:"column:cache_key;primaryKey"`
	Value     []byte `gorm:"column:value"`
	CreatedNs int64  `gorm:"column:created_at;not null;index"`
}

// TableName specifies the table name for cacheRow
func (cacheRow) TableName() string {
	return "cache"
}

// SQL is a Store backed by a relational table through gorm.
type SQL struct {
	db *gorm.DB
}

// OpenSQL opens dsn and migrates the cache table. A postgres:// or
// postgresql:// DSN selects postgres over lib/pq; anything else is treated
// as a sqlite path (":memory:" included).
func OpenSQL(dsn string) (*SQL, error) {
	var dialector gorm.Dialector
	isPostgres := IsPostgresDSN(dsn)
	if isPostgres {
		dialector = postgres.New(postgres.Config{DriverName: "postgres", DSN: dsn})
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, storageErr("open", "", err)
	}
	return NewSQL(db, !isPostgres)
}

func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// NewSQL wraps an existing gorm handle and migrates the cache table.
// singleConn pins the pool to one connection, which sqlite needs for
// in-memory databases and to avoid SQLITE_BUSY under concurrent writers.
func NewSQL(db *gorm.DB, singleConn bool) (*SQL, error) {
	if singleConn {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, storageErr("open", "", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&cacheRow{}); err != nil {
		return nil, storageErr("migrate", "", err)
	}
	return &SQL{db: db}, nil
}

func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storageErr("close", "", err)
	}
	return storageErr("close", "", sqlDB.Close())
}

func (s *SQL) Get(key string) (Record, error) {
	var row cacheRow
	err := s.db.Where("cache_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, storageErr("get", key, err)
	}
	return Record{Key: row.Key, Value: row.Value, CreatedAt: time.Unix(0, row.CreatedNs)}, nil
}

func (s *SQL) Upsert(rec Record) error {
	row := cacheRow{Key: rec.Key, Value: rec.Value, CreatedNs: rec.CreatedAt.UnixNano()}
	if row.Value == nil {
		row.Value = []byte{}
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "created_at"}),
	}).Create(&row).Error
	return storageErr("upsert", rec.Key, err)
}

func (s *SQL) Delete(key string) (int, error) {
	res := s.db.Where("cache_key = ?", key).Delete(&cacheRow{})
	if res.Error != nil {
		return 0, storageErr("delete", key, res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *SQL) DeleteCreatedBefore(cutoff time.Time) (int, error) {
	res := s.db.Where("created_at < ?", cutoff.UnixNano()).Delete(&cacheRow{})
	if res.Error != nil {
		return 0, storageErr("delete_before", "", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *SQL) DeleteKeyCreatedBefore(key string, cutoff time.Time) (int, error) {
	res := s.db.Where("cache_key = ? AND created_at < ?", key, cutoff.UnixNano()).Delete(&cacheRow{})
	if res.Error != nil {
		return 0, storageErr("delete_before", key, res.Error)
	}
	return int(res.RowsAffected), nil
}

var _ Store = (*SQL)(nil)
