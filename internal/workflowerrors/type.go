package workflowerrors

import (
	"errors"
	"path"
	"reflect"
)

// errorType names the first typed error in the chain of err as package.Type. Errors created with
// errors.New, and the wrappers of fmt.Errorf, carry no type of their own and are skipped.
func errorType(err error) string {
	for err != nil {
		t := reflect.TypeOf(err)
		for t.Kind() == reflect.Ptr {
			t = t.Elem()
		}

		switch {
		case t.PkgPath() == "errors" && t.Name() == "errorString":
		case t.PkgPath() == "fmt" && (t.Name() == "wrapError" || t.Name() == "wrapErrors"):
		default:
			return path.Base(t.PkgPath()) + "." + t.Name()
		}

		err = errors.Unwrap(err)
	}

	return ""
}
