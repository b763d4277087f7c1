package db

import "gorm.io/gorm"

// RowLockSuffix returns the locking clause for SELECT statements that must
// serialize writers on the same row. SQLite has no row-level locks; its
// single-writer model gives the same serialization, so the clause is dropped
// there (tests run on in-memory SQLite).
func RowLockSuffix(tx *gorm.DB) string {
	if tx == nil || tx.Dialector == nil {
		return ""
	}
	if tx.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}

// SkipLockedSuffix is the batch-claim variant used by sweep jobs so two
// overlapping runs pick disjoint rows instead of blocking on each other.
func SkipLockedSuffix(tx *gorm.DB) string {
	if tx == nil || tx.Dialector == nil {
		return ""
	}
	if tx.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE SKIP LOCKED"
}
