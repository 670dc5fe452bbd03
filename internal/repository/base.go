// Package repository provides data access interfaces and their gorm implementations.
package repository

import (
	"parley/internal/database"

	"gorm.io/gorm"
)

// base carries the shared write/read handles. Writes always hit the primary;
// reads prefer the replica when one is configured.
type base struct {
	write *gorm.DB
	read  *gorm.DB
}

func newBase(db *database.DB) base {
	return base{write: db.Primary, read: db.Reader()}
}
