package workflowerrors

import goerrors "github.com/go-errors/errors"

func stack(err error) string {
	// Skip stack, FromError, and the caller recording the failure
	goerr := goerrors.Wrap(err, 2)
	return string(goerr.Stack())
}
