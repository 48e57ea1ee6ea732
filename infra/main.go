package infra

import (
	"github.com/tnqbao/gau-vm-orchestrator/config"
	"github.com/tnqbao/gau-vm-orchestrator/infra/produce"
)

type Infra struct {
	Postgres *PostgresClient
	Redis    *RedisClient
	Logger   *LoggerClient
	RabbitMQ *RabbitMQClient
	Kubevirt *KubevirtClient
	Produce  *produce.Produce
}

var infraInstance *Infra

func InitInfra(cfg *config.Config) *Infra {
	if infraInstance != nil {
		return infraInstance
	}

	logger := InitLoggerClient(cfg.EnvConfig)
	if logger == nil {
		panic("Failed to initialize Logger service")
	}

	postgres := InitPostgresClient(cfg.EnvConfig)
	if postgres == nil {
		panic("Failed to initialize Postgres service")
	}

	redis := InitRedisClient(cfg.EnvConfig)
	if redis == nil {
		panic("Failed to initialize Redis service")
	}

	rabbitMQ := InitRabbitMQClient(cfg.EnvConfig)
	if rabbitMQ == nil {
		panic("Failed to initialize RabbitMQ service")
	}

	kubevirt := InitKubevirtClient(cfg.EnvConfig)
	if kubevirt == nil {
		panic("Failed to initialize Kubevirt service")
	}

	produceService := produce.InitProduce(rabbitMQ.Channel)
	if produceService == nil {
		panic("Failed to initialize Produce service")
	}

	infraInstance = &Infra{
		Postgres: postgres,
		Redis:    redis,
		Logger:   logger,
		RabbitMQ: rabbitMQ,
		Kubevirt: kubevirt,
		Produce:  produceService,
	}

	return infraInstance
}

func GetClient() *Infra {
	if infraInstance == nil {
		panic("Infra not initialized. Call InitInfra() first.")
	}
	return infraInstance
}
