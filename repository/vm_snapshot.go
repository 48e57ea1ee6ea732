package repository

import (
	"errors"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-orchestrator/entity"
	"gorm.io/gorm"
)

// VMSnapshotRepository handles all database operations for the VMSnapshot entity
type VMSnapshotRepository struct {
	db *gorm.DB
}

func NewVMSnapshotRepository(db *gorm.DB) *VMSnapshotRepository {
	return &VMSnapshotRepository{
		db: db,
	}
}

func (r *VMSnapshotRepository) Create(snapshot *entity.VMSnapshot) error {
	if snapshot == nil {
		return errors.New("snapshot cannot be nil")
	}
	return r.db.Create(snapshot).Error
}

func (r *VMSnapshotRepository) GetByID(id uuid.UUID) (*entity.VMSnapshot, error) {
	var snapshot entity.VMSnapshot
	err := r.db.First(&snapshot, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *VMSnapshotRepository) ListByVMInstance(vmInstanceID uuid.UUID) ([]*entity.VMSnapshot, error) {
	var snapshots []*entity.VMSnapshot
	err := r.db.Where("vm_instance_id = ?", vmInstanceID).Find(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (r *VMSnapshotRepository) Delete(id uuid.UUID) error {
	return r.db.Delete(&entity.VMSnapshot{}, "id = ?", id).Error
}
