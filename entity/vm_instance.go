package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VMInstance is the bookkeeping row for a VM on the cluster. Name doubles as
// the remote resource name, so it is globally unique. CPU and RAMGb track the
// last applied shape and are rewritten on every successful resize.
type VMInstance struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name       string    `json:"name" binding:"required,min=1,max=255" gorm:"uniqueIndex;not null"`
	Namespace  string    `json:"namespace" gorm:"not null"`
	UserID     uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	TemplateID uuid.UUID `json:"template_id" gorm:"type:uuid;not null"`
	CPU        int       `json:"cpu" gorm:"not null"`
	RAMGb      int       `json:"ram_gb" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
}

func (v *VMInstance) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
