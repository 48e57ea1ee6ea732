package repository

import (
	"errors"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-orchestrator/entity"
	"gorm.io/gorm"
)

// VMInstanceRepository handles all database operations for the VMInstance entity
type VMInstanceRepository struct {
	db *gorm.DB
}

func NewVMInstanceRepository(db *gorm.DB) *VMInstanceRepository {
	return &VMInstanceRepository{
		db: db,
	}
}

func (r *VMInstanceRepository) Create(vm *entity.VMInstance) error {
	if vm == nil {
		return errors.New("vm instance cannot be nil")
	}
	return r.db.Create(vm).Error
}

func (r *VMInstanceRepository) GetByID(id uuid.UUID) (*entity.VMInstance, error) {
	var vm entity.VMInstance
	err := r.db.First(&vm, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &vm, nil
}

func (r *VMInstanceRepository) GetByName(name string) (*entity.VMInstance, error) {
	var vm entity.VMInstance
	err := r.db.Where("name = ?", name).First(&vm).Error
	if err != nil {
		return nil, err
	}
	return &vm, nil
}

func (r *VMInstanceRepository) List() ([]*entity.VMInstance, error) {
	var vms []*entity.VMInstance
	err := r.db.Find(&vms).Error
	if err != nil {
		return nil, err
	}
	return vms, nil
}

func (r *VMInstanceRepository) ListByUser(userID uuid.UUID) ([]*entity.VMInstance, error) {
	var vms []*entity.VMInstance
	err := r.db.Where("user_id = ?", userID).Find(&vms).Error
	if err != nil {
		return nil, err
	}
	return vms, nil
}

// UpdateResources rewrites the tracked shape after a successful resize.
func (r *VMInstanceRepository) UpdateResources(id uuid.UUID, cpu, ramGb int) error {
	return r.db.Model(&entity.VMInstance{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"cpu": cpu, "ram_gb": ramGb}).Error
}

func (r *VMInstanceRepository) Delete(id uuid.UUID) error {
	return r.db.Delete(&entity.VMInstance{}, "id = ?", id).Error
}

func (r *VMInstanceRepository) ExistsByName(name string) (bool, error) {
	var count int64
	err := r.db.Model(&entity.VMInstance{}).Where("name = ?", name).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
