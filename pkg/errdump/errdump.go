// Package errdump renders an error chain for diagnostic logging: each
// wrapped layer with its concrete type, plus a spew dump of the innermost
// value when the caller wants full field-level detail.
//
// Ported from pkg/fmtt/printe.go, adapted from fmt.Println-to-stdout into
// string builders so call sites can attach the result as a zap field
// instead of writing straight to stdout.
package errdump

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// Chain renders one line per layer of err's unwrap chain: index, concrete
// type, and Error() text.
func Chain(err error) string {
	if err == nil {
		return "<nil>"
	}
	var b strings.Builder
	for i, e := 0, err; e != nil; i, e = i+1, errors.Unwrap(e) {
		fmt.Fprintf(&b, "[%d] %T: %v\n", i, e, e)
	}
	return b.String()
}

// ChainDebug renders Chain's output plus, for each layer, a spew dump of
// the error value, its exported struct fields, and whether it implements
// Unwrap()/Cause(). Verbose; intended for Debug-level logging only.
func ChainDebug(err error) string {
	var b strings.Builder
	for i := 0; err != nil; i, err = i+1, errors.Unwrap(err) {
		fmt.Fprintf(&b, "[%d] %T\n", i, err)
		fmt.Fprintf(&b, "   Error(): %v\n", err)
		fmt.Fprint(&b, indent(spew.Sdump(err)))

		rv := reflect.ValueOf(err)
		rt := reflect.TypeOf(err)
		if rt.Kind() == reflect.Ptr {
			rv = rv.Elem()
			rt = rt.Elem()
		}
		if rt.Kind() == reflect.Struct {
			for j := 0; j < rt.NumField(); j++ {
				f := rt.Field(j)
				v := rv.Field(j)
				if v.CanInterface() {
					fmt.Fprintf(&b, "   Field %s (%s): %+v\n", f.Name, f.Type, v.Interface())
				}
			}
		}

		if u, ok := err.(interface{ Unwrap() error }); ok {
			fmt.Fprintf(&b, "   Has Unwrap(): %T\n", u.Unwrap())
		}
		if c, ok := err.(interface{ Cause() error }); ok {
			fmt.Fprintf(&b, "   Has Cause(): %T\n", c.Cause())
		}
	}
	return b.String()
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "   " + l
	}
	return strings.Join(lines, "\n") + "\n"
}
