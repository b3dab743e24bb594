package dao

import (
	"time"

	"gorm.io/gorm"
)

// Live hides soft-deleted rows of table. Every read of chats, messages and
// uploaded files goes through it.
func Live(table string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(table+".is_deleted = ?", false)
	}
}

// Now is the clock used for every persisted timestamp. Microsecond precision
// matches what Postgres stores, so values survive a round trip unchanged.
var Now = func() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
