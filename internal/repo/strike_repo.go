// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the strike
// ledger.
//
// Error semantics:
//   - InsertStrike relies on the composite unique index for id collisions
//     and returns the raw DB error; the service layer detects the violation
//     and regenerates the token.
//   - Deletes report affected-row counts instead of raising on absence.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/example/steward/internal/domain"
)

// InsertStrike appends one immutable ledger entry. A unique-constraint
// violation on (community, subject, strike id) is returned as the raw DB
// error for the caller to translate.
func InsertStrike(ctx context.Context, db *gorm.DB, e *domain.StrikeEntry) error {
	return db.WithContext(ctx).Create(e).Error
}

// SumPoints returns the running point total for a subject, counting only
// entries with timestamp > cutoff. Pass cutoff 0 to count everything; decay
// is applied at read time, never by eager deletion.
func SumPoints(ctx context.Context, db *gorm.DB, communityID, subjectID, cutoff int64) (int, error) {
	var total *int
	err := db.WithContext(ctx).Model(&domain.StrikeEntry{}).
		Select("SUM(points)").
		Where("community_id = ? AND subject_id = ? AND timestamp > ?", communityID, subjectID, cutoff).
		Scan(&total).Error
	if err != nil || total == nil {
		return 0, err
	}
	return *total, nil
}

// ListStrikes returns a subject's entries ordered by timestamp ascending.
func ListStrikes(ctx context.Context, db *gorm.DB, communityID, subjectID int64) ([]domain.StrikeEntry, error) {
	var out []domain.StrikeEntry
	err := db.WithContext(ctx).
		Where("community_id = ? AND subject_id = ?", communityID, subjectID).
		Order("timestamp asc").
		Find(&out).Error
	return out, err
}

// DeleteStrike removes one entry by its id. Returns whether a row was
// deleted; a missing id is not an error.
func DeleteStrike(ctx context.Context, db *gorm.DB, communityID, subjectID int64, strikeID string) (bool, error) {
	res := db.WithContext(ctx).
		Where("community_id = ? AND subject_id = ? AND strike_id = ?", communityID, subjectID, strikeID).
		Delete(&domain.StrikeEntry{})
	return res.RowsAffected > 0, res.Error
}

// ClearStrikes removes all of a subject's entries in the community and
// returns how many were deleted.
func ClearStrikes(ctx context.Context, db *gorm.DB, communityID, subjectID int64) (int64, error) {
	res := db.WithContext(ctx).
		Where("community_id = ? AND subject_id = ?", communityID, subjectID).
		Delete(&domain.StrikeEntry{})
	return res.RowsAffected, res.Error
}

// PruneStrikesBefore deletes the community's entries with
// timestamp <= cutoff and returns the count. Backs the scheduled expiry
// sweep, which computes cutoff from the community's own decay.
func PruneStrikesBefore(ctx context.Context, db *gorm.DB, communityID, cutoff int64) (int64, error) {
	res := db.WithContext(ctx).
		Where("community_id = ? AND timestamp <= ?", communityID, cutoff).
		Delete(&domain.StrikeEntry{})
	return res.RowsAffected, res.Error
}
