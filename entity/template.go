package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Template is the resource ceiling a VM instance is provisioned against.
// Rows are written by the admin tooling; this service only reads them.
type Template struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name        string    `json:"name" binding:"required,min=1,max=255" gorm:"uniqueIndex;not null"`
	Namespace   string    `json:"namespace" gorm:"not null;default:default"`
	MaxCPU      int       `json:"max_cpu" binding:"required,min=1,max=128" gorm:"not null"`
	MaxRAM      int       `json:"max_ram" binding:"required,min=1" gorm:"not null"`
	MaxSpace    int       `json:"max_space" binding:"required,min=1" gorm:"not null"`
	QemuImage   string    `json:"qemu_image" binding:"required" gorm:"not null"`
	Description string    `json:"description"`
	CreatedBy   uuid.UUID `json:"created_by" gorm:"type:uuid"`
	CreatedAt   time.Time `json:"created_at"`
}

func (t *Template) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
