package feeders

import "errors"

// Static error definitions for feeders to comply with linting rules.
var (
	ErrStructureMustBePointer = errors.New("structure must be a non-nil pointer")
	ErrUnsupportedFieldType   = errors.New("unsupported field type")
	ErrEnvBoolConversion      = errors.New("cannot convert environment value to bool")
)
