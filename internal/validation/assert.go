// Package validation holds constructor precondition checks. A failed check is a
// wiring mistake in a composition root, so it panics instead of returning an error.
package validation

import (
	"fmt"
	"reflect"
)

// AssertNotNil panics if ptr is nil.
//
//	validation.AssertNotNil(cfg, "grouping config")
func AssertNotNil[T any](ptr *T, name string) {
	if ptr == nil {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
}

// AssertDependency panics if dep is a nil interface or an interface holding a nil pointer.
func AssertDependency(dep any, name string) {
	if dep == nil {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
	if v := reflect.ValueOf(dep); v.Kind() == reflect.Pointer && v.IsNil() {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
}
