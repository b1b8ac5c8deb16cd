// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for community
// membership records and their settings rows.
//
// The repository follows a "thin" approach: it performs persistence and
// simple query composition, leaving the reconciliation rules to the service
// layer. All membership writes are idempotent upserts so the reconciler can
// be re-run across reconnects without duplicating rows.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/example/steward/internal/domain"
)

// GetCommunity fetches one community row by id, or ErrNotFound.
func GetCommunity(ctx context.Context, db *gorm.DB, id int64) (*domain.Community, error) {
	var c domain.Community
	if err := db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCommunities returns every community row, member or not.
func ListCommunities(ctx context.Context, db *gorm.DB) ([]domain.Community, error) {
	var out []domain.Community
	err := db.WithContext(ctx).Order("id asc").Find(&out).Error
	return out, err
}

// InsertCommunity creates the two fundamental rows for a freshly joined
// community in one transaction: the membership record and an empty settings
// document. If the community row already exists, the membership timestamps
// are refreshed instead (a rejoin after the settings were pruned looks like
// a first join to the caller).
func InsertCommunity(ctx context.Context, db *gorm.DB, id, now int64) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Community
		err := tx.First(&existing, "id = ?", id).Error
		switch {
		case err == nil:
			return tx.Model(&domain.Community{}).
				Where("id = ?", id).
				Updates(map[string]any{"joined_at": now, "left_at": nil}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&domain.Community{ID: id, JoinedAt: now}).Error; err != nil {
				return err
			}
			return tx.Create(&domain.CommunitySettings{CommunityID: id, Document: "{}"}).Error
		default:
			return err
		}
	})
}

// MarkDeparted stamps left_at = now on a community still believed active.
// The write is conditional on left_at being NULL, so repeated calls (or a
// reconcile racing a live departure event) change nothing. Returns whether a
// row was updated.
func MarkDeparted(ctx context.Context, db *gorm.DB, id, now int64) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Community{}).
		Where("id = ? AND left_at IS NULL", id).
		Update("left_at", now)
	return res.RowsAffected > 0, res.Error
}

// MarkRejoined clears left_at and refreshes joined_at for a community that
// was previously marked departed. Conditional on left_at being set, so it is
// idempotent. Returns whether a row was updated.
func MarkRejoined(ctx context.Context, db *gorm.DB, id, now int64) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Community{}).
		Where("id = ? AND left_at IS NOT NULL", id).
		Updates(map[string]any{"joined_at": now, "left_at": nil})
	return res.RowsAffected > 0, res.Error
}

// ListDeadCommunities returns the ids of communities departed at or before
// cutoff. Used by the weekly prune.
func ListDeadCommunities(ctx context.Context, db *gorm.DB, cutoff int64) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).Model(&domain.Community{}).
		Where("left_at IS NOT NULL AND left_at <= ?", cutoff).
		Pluck("id", &ids).Error
	return ids, err
}

// DeleteCommunities removes the given communities together with all data
// rows associated with them, in one transaction.
func DeleteCommunities(ctx context.Context, db *gorm.DB, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("community_id IN ?", ids).Delete(&domain.StrikeEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Where("community_id IN ?", ids).Delete(&domain.StrikePolicyRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("community_id IN ?", ids).Delete(&domain.CommunitySettings{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&domain.Community{}).Error
	})
}
