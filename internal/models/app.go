package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AppStatus tracks whether a registered bridging app may authenticate.
type AppStatus string

const (
	AppActive    AppStatus = "active"
	AppSuspended AppStatus = "suspended"
)

// App is a registered bridging client: a chat frontend, an MCP host or any
// other protocol adapter that calls the memory API under its own name. The
// name doubles as the declared client name in session descriptors, and
// DefaultOwner is the owner id identity resolution falls back to for
// sessions this app opens without an explicit owner.
type App struct {
	gorm.Model

	Name         string `gorm:"uniqueIndex;not null;size:255"`
	SecretHash   string `gorm:"size:255" json:"-"` // bcrypt hash, never serialized
	DefaultOwner string `gorm:"size:255;not null"`

	Status   AppStatus      `gorm:"type:varchar(20);default:'active';not null"`
	Metadata datatypes.JSON // free-form client details (platform, contact, ...)
}

func (App) TableName() string {
	return "apps"
}
