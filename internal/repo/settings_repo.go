package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/steward/internal/domain"
)

// LoadActiveSettings returns the settings rows of every community the agent
// currently belongs to (left_at NULL). Rows for departed communities stay in
// place until the weekly prune but are not loaded into the cache.
func LoadActiveSettings(ctx context.Context, db *gorm.DB) ([]domain.CommunitySettings, error) {
	var out []domain.CommunitySettings
	err := db.WithContext(ctx).
		Joins("INNER JOIN communities ON communities.id = community_settings.community_id").
		Where("communities.left_at IS NULL").
		Find(&out).Error
	return out, err
}

// GetSettings fetches one community's settings row, or ErrNotFound.
func GetSettings(ctx context.Context, db *gorm.DB, communityID int64) (*domain.CommunitySettings, error) {
	var s domain.CommunitySettings
	if err := db.WithContext(ctx).First(&s, "community_id = ?", communityID).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSettings writes a community's settings document, creating the row if
// it does not exist yet. This is the flush half of the cache's
// mutate-then-flush discipline.
func UpsertSettings(ctx context.Context, db *gorm.DB, communityID int64, doc string) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "community_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"document"}),
	}).Create(&domain.CommunitySettings{CommunityID: communityID, Document: doc}).Error
}
