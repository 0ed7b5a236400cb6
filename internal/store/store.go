// Package store persists fragment indexes in SQLite so unchanged files are
// not rescanned across restarts.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/autobrr/go-fragindex/internal/fragindex"
)

// IndexRecord is one indexed file version.
type IndexRecord struct {
	ID           uint   `gorm:"primaryKey"`
	Path         string `gorm:"uniqueIndex;not null"`
	Size         int64  `gorm:"not null"`
	ModTimeNanos int64  `gorm:"not null"`
	Timescale    uint32
	DurationUs   int64
	Fragments    []FragmentRecord `gorm:"foreignKey:IndexID"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FragmentRecord is one row of an index, ordered by Seq.
type FragmentRecord struct {
	ID         uint  `gorm:"primaryKey"`
	IndexID    uint  `gorm:"index;not null"`
	Seq        int   `gorm:"not null"`
	Position   int64 `gorm:"not null"`
	Size       int64 `gorm:"not null"`
	TimeUs     int64 `gorm:"not null"`
	DurationUs int64 `gorm:"not null"`
}

type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite database at dsn and migrates the
// schema. Use ":memory:" for a throwaway store.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening index store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying database: %w", err)
	}
	// a single connection keeps :memory: databases shared across queries
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&IndexRecord{}, &FragmentRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrating index store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying database: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("closing index store: %w", err)
	}
	return nil
}

// Load returns the stored index for key. found is false when nothing is
// stored for the path or the stored entry belongs to another file version.
func (s *Store) Load(ctx context.Context, key fragindex.FileKey) (idx fragindex.Index, found bool, err error) {
	var record IndexRecord
	err = s.db.WithContext(ctx).
		Preload("Fragments", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("path = ?", key.Path).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fragindex.Index{}, false, nil
		}
		return fragindex.Index{}, false, fmt.Errorf("loading index for %s: %w", key.Path, err)
	}
	if record.Size != key.Size || record.ModTimeNanos != key.ModTime.UnixNano() {
		return fragindex.Index{}, false, nil
	}

	fragments := make([]fragindex.Fragment, len(record.Fragments))
	for i, f := range record.Fragments {
		fragments[i] = fragindex.Fragment{
			Position:   f.Position,
			Size:       f.Size,
			TimeUs:     f.TimeUs,
			DurationUs: f.DurationUs,
		}
	}
	idx = fragindex.NewIndex(fragments, record.Timescale)
	if err := idx.Validate(); err != nil {
		return fragindex.Index{}, false, fmt.Errorf("loading index for %s: %w", key.Path, err)
	}
	return idx, true, nil
}

// Save replaces whatever is stored for key.Path with idx.
func (s *Store) Save(ctx context.Context, key fragindex.FileKey, idx fragindex.Index) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deletePath(tx, key.Path); err != nil {
			return err
		}

		record := IndexRecord{
			Path:         key.Path,
			Size:         key.Size,
			ModTimeNanos: key.ModTime.UnixNano(),
			Timescale:    idx.Timescale(),
			DurationUs:   idx.DurationUs(),
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		fragments := idx.Fragments()
		if len(fragments) == 0 {
			return nil
		}
		rows := make([]FragmentRecord, len(fragments))
		for i, f := range fragments {
			rows[i] = FragmentRecord{
				IndexID:    record.ID,
				Seq:        i,
				Position:   f.Position,
				Size:       f.Size,
				TimeUs:     f.TimeUs,
				DurationUs: f.DurationUs,
			}
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("saving index for %s: %w", key.Path, err)
	}
	return nil
}

// Delete removes the stored index for path, if any.
func (s *Store) Delete(ctx context.Context, path string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deletePath(tx, path)
	})
	if err != nil {
		return fmt.Errorf("deleting index for %s: %w", path, err)
	}
	return nil
}

// Count returns the number of stored indexes.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&IndexRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting indexes: %w", err)
	}
	return n, nil
}

func deletePath(tx *gorm.DB, path string) error {
	var ids []uint
	if err := tx.Model(&IndexRecord{}).Where("path = ?", path).Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("index_id IN ?", ids).Delete(&FragmentRecord{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&IndexRecord{}).Error
}
