package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/example/steward/internal/domain"
)

// ListCommandInfo returns every cached command row, tombstoned or not.
func ListCommandInfo(ctx context.Context, db *gorm.DB) ([]domain.CommandInfo, error) {
	var out []domain.CommandInfo
	err := db.WithContext(ctx).Order("qualified_name asc").Find(&out).Error
	return out, err
}

// InsertCommandInfo creates the metadata row for a newly registered command.
func InsertCommandInfo(ctx context.Context, db *gorm.DB, name string, now int64) error {
	return db.WithContext(ctx).Create(&domain.CommandInfo{
		QualifiedName: name,
		AddedAt:       now,
		Enabled:       true,
	}).Error
}

// SetCommandRemoved flips the tombstone flag. Reviving a command (removed =
// false) keeps its accumulated counters.
func SetCommandRemoved(ctx context.Context, db *gorm.DB, name string, removed bool) error {
	return db.WithContext(ctx).Model(&domain.CommandInfo{}).
		Where("qualified_name = ?", name).
		Update("removed", removed).Error
}

// AddCommandUsage folds an in-memory usage delta into the stored counters.
// The increment happens in SQL so concurrent flushes cannot lose counts.
func AddCommandUsage(ctx context.Context, db *gorm.DB, name string, delta, lastUsed int64) error {
	return db.WithContext(ctx).Model(&domain.CommandInfo{}).
		Where("qualified_name = ?", name).
		Updates(map[string]any{
			"invocation_count": gorm.Expr("invocation_count + ?", delta),
			"last_used_at":     gorm.Expr("MAX(last_used_at, ?)", lastUsed),
		}).Error
}
