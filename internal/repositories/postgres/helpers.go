package postgres

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SharedHelpers carries the base connection and query helpers every repository uses.
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// conn returns tx when running inside a transaction, the base connection otherwise.
func (h *SharedHelpers) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return h.db.WithContext(ctx)
}

// forUpdate adds a row lock on dialects that support SELECT ... FOR UPDATE.
func (h *SharedHelpers) forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}
