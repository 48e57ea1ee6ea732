package infra

import (
	"fmt"

	"github.com/tnqbao/gau-vm-orchestrator/config"
	"github.com/tnqbao/gau-vm-orchestrator/entity"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type PostgresClient struct {
	DB *gorm.DB
}

func InitPostgresClient(cfg *config.EnvConfig) *PostgresClient {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		cfg.Postgres.Host,
		cfg.Postgres.Username,
		cfg.Postgres.Password,
		cfg.Postgres.Database,
		cfg.Postgres.Port,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		panic("Failed to connect to Postgres: " + err.Error())
	}

	if err := db.AutoMigrate(
		&entity.Template{},
		&entity.VMInstance{},
		&entity.VMCost{},
		&entity.VMSnapshot{},
	); err != nil {
		panic("Failed to migrate database schema: " + err.Error())
	}

	return &PostgresClient{DB: db}
}
