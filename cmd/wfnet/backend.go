package main

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/backend/memory"
	"github.com/cschleiden/go-wfnet/backend/monoprocess"
	"github.com/cschleiden/go-wfnet/backend/mysql"
	"github.com/cschleiden/go-wfnet/backend/postgres"
	"github.com/cschleiden/go-wfnet/backend/redis"
	"github.com/cschleiden/go-wfnet/backend/sqlite"
)

func backendFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "backend",
			Usage:   "Storage backend (memory, sqlite, mysql, postgres, redis)",
			Value:   "sqlite",
			Sources: cli.EnvVars("WFNET_BACKEND"),
		},
		&cli.StringFlag{
			Name:    "sqlite-path",
			Usage:   "Database file of the sqlite backend",
			Value:   "wfnet.sqlite",
			Sources: cli.EnvVars("WFNET_SQLITE_PATH"),
		},
		&cli.StringFlag{
			Name:    "db-host",
			Value:   "localhost",
			Sources: cli.EnvVars("WFNET_DB_HOST"),
		},
		&cli.IntFlag{
			Name:    "db-port",
			Usage:   "Database port, defaults to the port of the backend's database",
			Sources: cli.EnvVars("WFNET_DB_PORT"),
		},
		&cli.StringFlag{
			Name:    "db-user",
			Value:   "root",
			Sources: cli.EnvVars("WFNET_DB_USER"),
		},
		&cli.StringFlag{
			Name:    "db-password",
			Sources: cli.EnvVars("WFNET_DB_PASSWORD"),
		},
		&cli.StringFlag{
			Name:    "db-name",
			Value:   "wfnet",
			Sources: cli.EnvVars("WFNET_DB_NAME"),
		},
		&cli.StringFlag{
			Name:    "redis-addr",
			Value:   "localhost:6379",
			Sources: cli.EnvVars("WFNET_REDIS_ADDR"),
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Sources: cli.EnvVars("WFNET_REDIS_PASSWORD"),
		},
	}
}

// openBackend creates the backend selected by the flags. Backends for external databases apply their
// migrations on creation.
func openBackend(ctx context.Context, cmd *cli.Command, opts ...backend.BackendOption) (backend.Backend, error) {
	port := cmd.Int("db-port")

	switch name := cmd.String("backend"); name {
	case "memory":
		// Everything runs in this process, so workers can be signaled directly
		return monoprocess.NewMonoprocessBackend(memory.NewMemoryBackend(opts...), 1, 0), nil

	case "sqlite":
		return sqlite.NewSqliteBackend(cmd.String("sqlite-path"), sqlite.WithBackendOptions(opts...)), nil

	case "mysql":
		if port == 0 {
			port = 3306
		}

		return mysql.NewMysqlBackend(cmd.String("db-host"), port, cmd.String("db-user"), cmd.String("db-password"), cmd.String("db-name"),
			mysql.WithBackendOptions(opts...)), nil

	case "postgres":
		if port == 0 {
			port = 5432
		}

		return postgres.NewPostgresBackend(cmd.String("db-host"), port, cmd.String("db-user"), cmd.String("db-password"), cmd.String("db-name"),
			postgres.WithNotifications(true),
			postgres.WithBackendOptions(opts...)), nil

	case "redis":
		client := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    []string{cmd.String("redis-addr")},
			Password: cmd.String("redis-password"),
		})

		b, err := redis.NewRedisBackend(client, redis.WithBackendOptions(opts...))
		if err != nil {
			return nil, err
		}

		return b, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}
