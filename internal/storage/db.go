package storage

import (
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PeerRecord is the `peers` table: unique key (ip, port).
type PeerRecord struct {
	ID          uint   `gorm:"primaryKey"`
	IP          string `gorm:"size:45;uniqueIndex:idx_peers_ip_port"`
	Port        int    `gorm:"uniqueIndex:idx_peers_ip_port"`
	State       int
	OS          string `gorm:"size:64"`
	Version     string `gorm:"size:12"`
	ClockMillis int64
}

func (PeerRecord) TableName() string { return "peers" }

// PeerDappRecord is the `peers_dapp` many-to-many association table.
type PeerDappRecord struct {
	ID     uint   `gorm:"primaryKey"`
	PeerID uint   `gorm:"index:idx_peers_dapp,unique"`
	DappID string `gorm:"size:64;index:idx_peers_dapp,unique"`
}

func (PeerDappRecord) TableName() string { return "peers_dapp" }

// DB wraps a *gorm.DB opened against a single SQLite file. It is the
// concrete adapter behind the `db` capability internal/peers consumes.
type DB struct {
	Gorm *gorm.DB
}

// Open opens (creating if necessary) the SQLite database at path and runs
// the schema migration for the peers/peers_dapp tables.
func Open(path string) (*DB, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "storage: open database")
	}

	if err := gdb.AutoMigrate(&PeerRecord{}, &PeerDappRecord{}); err != nil {
		return nil, errors.Wrap(err, "storage: migrate schema")
	}

	return &DB{Gorm: gdb}, nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	sqlDB, err := d.Gorm.DB()
	if err != nil {
		return errors.Wrap(err, "storage: obtain sql.DB")
	}
	return sqlDB.Close()
}
