package workflowerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_FromError_CapturesStack(t *testing.T) {
	var f func()
	f = func() {
		failure := FromError(errors.New("boom"))
		require.Contains(t, failure.Stacktrace, "Test_FromError_CapturesStack")
	}

	foo(f)
}

func foo(fn func()) {
	bar(fn)
}

func bar(fn func()) {
	fn()
}
