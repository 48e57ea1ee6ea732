package config

import (
	"os"
	"strconv"
	"strings"
)

type EnvConfig struct {
	Postgres struct {
		Host     string
		Database string
		Username string
		Password string
		Port     string
	}
	Redis struct {
		Password string
		Database int
		Host     string
		Port     string
	}
	RabbitMQ struct {
		Host     string
		Port     string
		Username string
		Password string
	}
	JWT struct {
		SecretKey string
		Algorithm string
		Expire    int
	}
	CORS struct {
		AllowDomains string
	}
	Kubevirt struct {
		APIURL       string
		WSURL        string
		Token        string
		Namespace    string
		StorageClass string
		InsecureTLS  bool
	}
	Grafana struct {
		OTLPEndpoint string
		ServiceName  string
	}
	Environment struct {
		Mode string
	}
}

func LoadEnvConfig() *EnvConfig {
	var config EnvConfig

	// Postgres
	config.Postgres.Host = os.Getenv("PGPOOL_HOST")
	config.Postgres.Database = os.Getenv("PGPOOL_DB")
	config.Postgres.Username = os.Getenv("PGPOOL_USER")
	config.Postgres.Password = os.Getenv("PGPOOL_PASSWORD")
	config.Postgres.Port = os.Getenv("PGPOOL_PORT")
	if config.Postgres.Port == "" {
		config.Postgres.Port = "5432"
	}

	// Redis
	config.Redis.Password = os.Getenv("REDIS_PASSWORD")
	config.Redis.Database, _ = strconv.Atoi(os.Getenv("REDIS_DB"))
	config.Redis.Host = os.Getenv("REDIS_HOST")
	config.Redis.Port = os.Getenv("REDIS_PORT")
	if config.Redis.Port == "" {
		config.Redis.Port = "6379"
	}

	// RabbitMQ
	config.RabbitMQ.Host = os.Getenv("RABBITMQ_HOST")
	if config.RabbitMQ.Host == "" {
		config.RabbitMQ.Host = "localhost"
	}
	config.RabbitMQ.Port = os.Getenv("RABBITMQ_PORT")
	if config.RabbitMQ.Port == "" {
		config.RabbitMQ.Port = "5672"
	}
	config.RabbitMQ.Username = os.Getenv("RABBITMQ_USER")
	if config.RabbitMQ.Username == "" {
		config.RabbitMQ.Username = "guest"
	}
	config.RabbitMQ.Password = os.Getenv("RABBITMQ_PASSWORD")
	if config.RabbitMQ.Password == "" {
		config.RabbitMQ.Password = "guest"
	}

	// JWT
	config.JWT.SecretKey = os.Getenv("JWT_SECRET_KEY")
	config.JWT.Algorithm = os.Getenv("JWT_ALGORITHM")
	if config.JWT.Algorithm == "" {
		config.JWT.Algorithm = "HS256"
	}
	if val := os.Getenv("JWT_EXPIRE"); val != "" {
		config.JWT.Expire, _ = strconv.Atoi(val)
	} else {
		config.JWT.Expire = 3600 * 24 * 7
	}

	config.CORS.AllowDomains = os.Getenv("ALLOWED_DOMAINS")

	// Kubevirt cluster API
	config.Kubevirt.APIURL = os.Getenv("KUBERNETES_API_URL")
	if config.Kubevirt.APIURL == "" {
		config.Kubevirt.APIURL = "https://localhost:6443"
	}
	config.Kubevirt.WSURL = os.Getenv("KUBERNETES_WS_URL")
	if config.Kubevirt.WSURL == "" {
		config.Kubevirt.WSURL = strings.Replace(strings.Replace(config.Kubevirt.APIURL, "https://", "wss://", 1), "http://", "ws://", 1)
	}
	config.Kubevirt.Token = os.Getenv("KUBERNETES_TOKEN")
	config.Kubevirt.Namespace = os.Getenv("KUBERNETES_NAMESPACE")
	if config.Kubevirt.Namespace == "" {
		config.Kubevirt.Namespace = "default"
	}
	config.Kubevirt.StorageClass = os.Getenv("KUBERNETES_STORAGE_CLASS")
	if config.Kubevirt.StorageClass == "" {
		config.Kubevirt.StorageClass = "standard"
	}
	// The lab clusters run self-signed certs; verification stays off unless
	// explicitly enabled.
	config.Kubevirt.InsecureTLS = os.Getenv("KUBERNETES_TLS_VERIFY") != "true"

	// Grafana/OpenTelemetry
	otlpEndpoint := os.Getenv("GRAFANA_OTLP_ENDPOINT")
	otlpEndpoint = strings.TrimPrefix(otlpEndpoint, "https://")
	otlpEndpoint = strings.TrimPrefix(otlpEndpoint, "http://")
	config.Grafana.OTLPEndpoint = otlpEndpoint
	config.Grafana.ServiceName = os.Getenv("SERVICE_NAME")
	if config.Grafana.ServiceName == "" {
		config.Grafana.ServiceName = "gau-vm-orchestrator"
	}

	config.Environment.Mode = os.Getenv("DEPLOY_ENV")
	if config.Environment.Mode == "" {
		config.Environment.Mode = "development"
	}

	return &config
}
