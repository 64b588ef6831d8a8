package repository

import (
	"gorm.io/gorm"
)

// Repository wraps the store. Use WithTx to run the same queries inside a transaction.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// DB returns the underlying handle
func (r *Repository) DB() *gorm.DB {
	return r.db
}
