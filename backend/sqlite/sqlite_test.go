package sqlite

import (
	"testing"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/backend/test"
)

func Test_SqliteBackend(t *testing.T) {
	test.BackendTest(t, func() backend.Backend {
		return NewInMemoryBackend()
	}, func(b backend.Backend) {
		b.Close()
	})
}

func Test_EndToEndSqliteBackend(t *testing.T) {
	test.EndToEndBackendTest(t, func() backend.Backend {
		return NewInMemoryBackend()
	}, func(b backend.Backend) {
		b.Close()
	})
}
