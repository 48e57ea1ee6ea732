package repository

import (
	"errors"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-orchestrator/entity"
	"gorm.io/gorm"
)

// VMCostRepository appends to and reads the billing ledger. The ledger is
// historical record keeping, so there is no update or delete.
type VMCostRepository struct {
	db *gorm.DB
}

func NewVMCostRepository(db *gorm.DB) *VMCostRepository {
	return &VMCostRepository{
		db: db,
	}
}

func (r *VMCostRepository) Create(cost *entity.VMCost) error {
	if cost == nil {
		return errors.New("vm cost cannot be nil")
	}
	return r.db.Create(cost).Error
}

func (r *VMCostRepository) ListByVMInstance(vmInstanceID uuid.UUID) ([]*entity.VMCost, error) {
	var costs []*entity.VMCost
	err := r.db.Where("vm_instance_id = ?", vmInstanceID).
		Order("recorded_at asc").
		Find(&costs).Error
	if err != nil {
		return nil, err
	}
	return costs, nil
}
