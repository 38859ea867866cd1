package model

import (
	"time"

	"github.com/google/uuid"
)

// Customer is the local mirror of the customer/supplier directory, used only
// to resolve customer codes when scoping BOM edges. The directory collaborator
// owns the data.
type Customer struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Code      string    `gorm:"uniqueIndex;not null"`
	Name      string    `gorm:"index;not null"`
	Active    bool      `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
