package event

import "github.com/pkg/errors"

var (

	// ErrDuplicateType occurs when a type name is registered twice in the same
	// registry.
	ErrDuplicateType = errors.New(`duplicate type`)

	// ErrUnknownType occurs when a field or value references a type that was not
	// registered with the registry in use.
	ErrUnknownType = errors.New(`unknown type`)

	// ErrTypeMismatch occurs when a value is not compatible with the type of the
	// field or slot it is assigned to.
	ErrTypeMismatch = errors.New(`type mismatch`)
)

func duplicateType(name string) error {
	return errors.Wrapf(ErrDuplicateType, `type %q already registered`, name)
}

func unknownType(format string, args ...interface{}) error {
	return errors.Wrapf(ErrUnknownType, format, args...)
}

func mismatch(format string, args ...interface{}) error {
	return errors.Wrapf(ErrTypeMismatch, format, args...)
}
