package samples

import (
	"flag"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/backend/memory"
	"github.com/cschleiden/go-wfnet/backend/monoprocess"
	"github.com/cschleiden/go-wfnet/backend/mysql"
	"github.com/cschleiden/go-wfnet/backend/postgres"
	"github.com/cschleiden/go-wfnet/backend/redis"
	"github.com/cschleiden/go-wfnet/backend/sqlite"
)

func GetBackend(name string, opt ...backend.BackendOption) backend.Backend {
	b := flag.String("backend", "memory", "backend to use: memory, sqlite, mysql, postgres, redis")
	flag.Parse()

	switch *b {
	case "memory":
		return monoprocess.NewMonoprocessBackend(memory.NewMemoryBackend(opt...), 1, 0)

	case "sqlite":
		return sqlite.NewSqliteBackend(name+".sqlite", sqlite.WithBackendOptions(opt...))

	case "mysql":
		return mysql.NewMysqlBackend("localhost", 3306, "root", "root", name, mysql.WithBackendOptions(opt...))

	case "postgres":
		return postgres.NewPostgresBackend("localhost", 5432, "root", "root", name,
			postgres.WithNotifications(true),
			postgres.WithBackendOptions(opt...))

	case "redis":
		rclient := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:        []string{"localhost:6379"},
			Password:     "RedisPassw0rd",
			DB:           0,
			WriteTimeout: time.Second * 30,
			ReadTimeout:  time.Second * 30,
		})

		b, err := redis.NewRedisBackend(rclient, redis.WithBackendOptions(opt...), redis.WithKeyPrefix(name))
		if err != nil {
			panic(err)
		}

		return b

	default:
		panic("unknown backend " + *b)
	}
}
