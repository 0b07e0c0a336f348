package mapping

import (
	"fmt"
	"reflect"
)

// unmappedReferenceError is returned when Walk encounters a reference-typed
// field whose target type has no registered mapping.
type unmappedReferenceError struct{ t reflect.Type }

func newUnmappedReferenceError(t reflect.Type) error { return &unmappedReferenceError{t: t} }

func (e *unmappedReferenceError) Error() string {
	return fmt.Sprintf("mapping: reference target %s has no registered mapping", e.t)
}
