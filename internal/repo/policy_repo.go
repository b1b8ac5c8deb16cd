package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/example/steward/internal/domain"
)

// GetPolicyRows returns all stored policy rows for a community. An
// unconfigured community yields an empty slice, not an error.
func GetPolicyRows(ctx context.Context, db *gorm.DB, communityID int64) ([]domain.StrikePolicyRow, error) {
	var out []domain.StrikePolicyRow
	err := db.WithContext(ctx).
		Where("community_id = ?", communityID).
		Find(&out).Error
	return out, err
}

// ReplacePolicyRows swaps a community's policy wholesale: the old decay and
// threshold rows are deleted and the new set inserted in one transaction, so
// a failure leaves the previous policy intact.
func ReplacePolicyRows(ctx context.Context, db *gorm.DB, communityID int64, rows []domain.StrikePolicyRow) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("community_id = ?", communityID).
			Delete(&domain.StrikePolicyRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}
