package cache

import (
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// indexRow is the gorm model backing Index, a queryable secondary index
// over the canonical on-disk manifests.
type indexRow struct {
	Fingerprint string `gorm:"primaryKey"`
	Language string `gorm:"index"`
	ABIVersion int
	CreatedAt time.Time
	SourceSize int
}

// Index is a SQLite-backed secondary index over code-cache manifests.
type Index struct {
	db *gorm.DB
}

// OpenIndex opens (creating if absent) a SQLite index database at path.
// Pass ":memory:" for an ephemeral index used only for the lifetime of
// this process.
func OpenIndex(path string) (*Index, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&indexRow{}); err != nil {
		return nil, err
	}
	return &Index{db: db}, nil
}

// Upsert records art in the index. Neither Cache nor DirManifestStore
// calls it: the index holds only what its owner upserts or rebuilds, and
// the manifest files stay the authoritative record.
func (idx *Index) Upsert(art Artifact) error {
	row := indexRow{
		Fingerprint: art.Fingerprint, Language: art.Language, ABIVersion: art.ABIVersion,
		CreatedAt: art.CreatedAt, SourceSize: art.SourceSize,
	}
	return idx.db.Save(&row).Error
}

// Remove deletes fingerprint's index row. Eviction and sweep in
// DirManifestStore do not call it.
func (idx *Index) Remove(fingerprint string) error {
	return idx.db.Delete(&indexRow{}, "fingerprint = ?", fingerprint).Error
}

// ByLanguage lists every indexed fingerprint for a language, most recent
// first — used for operational inspection.
func (idx *Index) ByLanguage(language string) ([]string, error) {
	var rows []indexRow
	if err := idx.db.Where("language = ?", language).Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Fingerprint
	}
	return out, nil
}

// Rebuild clears the index and repopulates it from artifacts. Nothing in
// this package calls it at startup; the index carries no authority of its
// own, so it can always be thrown away and rebuilt this way.
func (idx *Index) Rebuild(artifacts []Artifact) error {
	if err := idx.db.Exec("DELETE FROM index_rows").Error; err != nil {
		return err
	}
	for _, art := range artifacts {
		if err := idx.Upsert(art); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Index) Close() error {
	sqlDB, err := idx.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
