package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VMSnapshot maps a local snapshot record to its cluster resource. The local
// row is the durable identity; the remote resource is re-queried by
// SnapshotName on every read.
type VMSnapshot struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	VMInstanceID uuid.UUID `json:"vm_instance_id" gorm:"type:uuid;not null;index"`
	SnapshotName string    `json:"snapshot_name" gorm:"uniqueIndex;not null"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s *VMSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
