package event

import (
	"strconv"

	"github.com/pkg/errors"
)

// SkipValue may be returned by a WalkFunc to skip the children of the value it
// was called with.
var SkipValue = errors.New(`skip this value`)

// WalkFunc is called for each value visited by Walk. The path of the root is
// empty, fields are joined with dots and array elements are indexed, for
// example `stackTrace.frames[0].method`.
type WalkFunc func(path string, v Value) error

// Walk visits v and every value it contains depth first, in field declaration
// order.
func Walk(v Value, fn WalkFunc) error {
	err := walk(``, v, fn)
	if err == SkipValue {
		return nil
	}
	return err
}

func walk(path string, v Value, fn WalkFunc) error {
	if err := fn(path, v); err != nil {
		return err
	}

	switch v.shape {
	case ShapeComposite:
		for i, f := range v.fields {
			p := v.typ.fields[i].Name
			if path != `` {
				p = path + `.` + p
			}
			if err := walk(p, f, fn); err != nil && err != SkipValue {
				return err
			}
		}
	case ShapeArray:
		for i, e := range v.elems {
			p := path + `[` + strconv.Itoa(i) + `]`
			if err := walk(p, e, fn); err != nil && err != SkipValue {
				return err
			}
		}
	}
	return nil
}
