package repository

import (
	"github.com/tnqbao/gau-vm-orchestrator/infra"
)

type Repository struct {
	VMInstanceRepo *VMInstanceRepository
	TemplateRepo   *TemplateRepository
	VMCostRepo     *VMCostRepository
	VMSnapshotRepo *VMSnapshotRepository
}

var repository *Repository

func InitRepository(infra *infra.Infra) *Repository {
	if infra.Postgres.DB == nil {
		panic("database connection is nil")
	}
	repository = &Repository{
		VMInstanceRepo: NewVMInstanceRepository(infra.Postgres.DB),
		TemplateRepo:   NewTemplateRepository(infra.Postgres.DB, infra.Redis.Client),
		VMCostRepo:     NewVMCostRepository(infra.Postgres.DB),
		VMSnapshotRepo: NewVMSnapshotRepository(infra.Postgres.DB),
	}
	return repository
}

func GetRepository() *Repository {
	if repository == nil {
		panic("repository not initialized")
	}
	return repository
}
