package backend

import (
	"log/slog"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestDefaultValues(t *testing.T) {
	opts := ApplyOptions()

	assert.NotNil(t, opts.Logger)
	assert.NotNil(t, opts.Metrics)
	assert.NotNil(t, opts.TracerProvider)
	assert.NotNil(t, opts.Clock)
}

func TestWithClock(t *testing.T) {
	c := clock.NewMock()

	opts := ApplyOptions(WithClock(c))

	assert.Same(t, c, opts.Clock)
}

func TestNilLoggerFallsBackToDefault(t *testing.T) {
	opts := ApplyOptions(WithLogger(nil))

	assert.Equal(t, slog.Default(), opts.Logger)
}

func TestBuffer_LaterWriteReplacesEarlier(t *testing.T) {
	var b Buffer
	assert.True(t, b.Empty())

	b.Put(&Record{Kind: "k", ID: "1", Data: []byte("a")})
	b.Put(&Record{Kind: "k", ID: "2"})
	b.Put(&Record{Kind: "k", ID: "1", Data: []byte("b")})

	ops := b.Ops()
	assert.Len(t, ops, 2)
	assert.Equal(t, []byte("b"), ops[0].Record.Data)

	b.Delete("k", "2", 3)
	assert.True(t, b.Ops()[1].Delete)
	assert.Equal(t, int64(3), b.Ops()[1].Record.Version)
}
