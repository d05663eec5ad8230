package configuration

import (
	"reflect"
	"time"

	commonconfig "github.com/technocodist/aitcsm/internal/common/config"
	"github.com/technocodist/aitcsm/internal/common/logging"
	"github.com/technocodist/aitcsm/internal/pipeline"
)

type SinkType string

const (
	SinkSQLite   SinkType = "sqlite"
	SinkPostgres SinkType = "postgres"
	SinkRedis    SinkType = "redis"
	SinkNATS     SinkType = "nats"
	SinkFile     SinkType = "file"
	SinkMemory   SinkType = "memory"
)

func init() {
	commonconfig.EnumTypes = append(commonconfig.EnumTypes,
		reflect.TypeOf(SinkType("")),
		reflect.TypeOf(pipeline.FlushMode("")),
	)
}

type SimRunnerConfig struct {
	Logging logging.Config
	// Port on which prometheus metrics are served. Zero disables the metrics server.
	MetricsPort uint16
	// Engine used for input files that do not name one.
	Engine string
	// Glob patterns, with ** support, matching the yaml files that hold the tasks to run.
	Inputs   []string `validate:"required,min=1,dive,required"`
	Pipeline pipeline.Config
	Sink     SinkConfig
}

type SinkConfig struct {
	// Every batch is stored in each of these sinks.
	Types []SinkType `validate:"required,min=1,dive,oneof=sqlite postgres redis nats file memory"`
	// How long opening every sink, including connecting to remote stores, may take. Zero waits indefinitely.
	OpenTimeout time.Duration `validate:"gte=0"`
	Retry       RetryConfig
	SQLite      SQLiteConfig
	Postgres    PostgresConfig
	Redis       commonconfig.RedisConfig
	NATS        NATSConfig
	File        FileConfig
}

type RetryConfig struct {
	// Total attempts per batch, including the first. Zero or one disables retries.
	Attempts uint
	Delay    time.Duration `validate:"gte=0"`
}

type SQLiteConfig struct {
	Path string
}

type PostgresConfig struct {
	// Connection parameters as key value pairs, e.g. host, port, user, password, dbname, sslmode.
	Connection map[string]string
}

type NATSConfig struct {
	Url     string
	Subject string
}

type FileConfig struct {
	Dir string
}
