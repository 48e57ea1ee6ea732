package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tnqbao/gau-vm-orchestrator/entity"
	"gorm.io/gorm"
)

const templateCacheTTL = time.Hour

// TemplateRepository reads templates. Templates are immutable once referenced
// by a VM instance, so rows are cached in redis keyed by id; cache failures
// fall through to the database.
type TemplateRepository struct {
	db      *gorm.DB
	cacheDb *redis.Client
}

func NewTemplateRepository(db *gorm.DB, cacheDb *redis.Client) *TemplateRepository {
	return &TemplateRepository{
		db:      db,
		cacheDb: cacheDb,
	}
}

func (r *TemplateRepository) cacheKey(id uuid.UUID) string {
	return "template:" + id.String()
}

func (r *TemplateRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Template, error) {
	if r.cacheDb != nil {
		if cached, err := r.cacheDb.Get(ctx, r.cacheKey(id)).Result(); err == nil {
			var template entity.Template
			if err := json.Unmarshal([]byte(cached), &template); err == nil {
				return &template, nil
			}
		}
	}

	var template entity.Template
	if err := r.db.First(&template, "id = ?", id).Error; err != nil {
		return nil, err
	}

	if r.cacheDb != nil {
		if encoded, err := json.Marshal(&template); err == nil {
			r.cacheDb.Set(ctx, r.cacheKey(id), encoded, templateCacheTTL)
		}
	}
	return &template, nil
}

func (r *TemplateRepository) List() ([]*entity.Template, error) {
	var templates []*entity.Template
	err := r.db.Find(&templates).Error
	if err != nil {
		return nil, err
	}
	return templates, nil
}
