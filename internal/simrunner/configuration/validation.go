package configuration

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	commonconfig "github.com/technocodist/aitcsm/internal/common/config"
)

// Validate checks the struct tags and then the settings each selected sink needs.
func (c SimRunnerConfig) Validate() error {
	if err := commonconfig.Validate(c); err != nil {
		return err
	}
	var result *multierror.Error
	if err := c.Pipeline.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	for _, t := range c.Sink.Types {
		switch t {
		case SinkSQLite:
			if c.Sink.SQLite.Path == "" {
				result = multierror.Append(result, errors.New("sink.sqlite.path is required by the sqlite sink"))
			}
		case SinkPostgres:
			if len(c.Sink.Postgres.Connection) == 0 {
				result = multierror.Append(result, errors.New("sink.postgres.connection is required by the postgres sink"))
			}
		case SinkRedis:
			if len(c.Sink.Redis.Addrs) == 0 {
				result = multierror.Append(result, errors.New("sink.redis.addrs is required by the redis sink"))
			}
		case SinkNATS:
			if c.Sink.NATS.Url == "" || c.Sink.NATS.Subject == "" {
				result = multierror.Append(result, errors.New("sink.nats.url and sink.nats.subject are required by the nats sink"))
			}
		case SinkFile:
			if c.Sink.File.Dir == "" {
				result = multierror.Append(result, errors.New("sink.file.dir is required by the file sink"))
			}
		}
	}
	return result.ErrorOrNil()
}

// ConnString renders the postgres connection parameters in the key=value form pgx accepts.
func (c PostgresConfig) ConnString() string {
	keys := make([]string, 0, len(c.Connection))
	for k := range c.Connection {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, c.Connection[k])
	}
	return strings.Join(parts, " ")
}
