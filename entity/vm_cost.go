package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VMCost is one entry of the append-only billing ledger. Rates are in cents
// per hour. Ledger rows are never updated or deleted.
type VMCost struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	VMInstanceID uuid.UUID `json:"vm_instance_id" gorm:"type:uuid;not null;index"`
	CPUCores     int       `json:"cpu_cores" gorm:"not null"`
	RAMGb        int       `json:"ram_gb" gorm:"not null"`
	CostPerHour  int       `json:"cost_per_hour" gorm:"not null"`
	RecordedAt   time.Time `json:"recorded_at"`
}

func (c *VMCost) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
