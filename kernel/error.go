package kernel

// Error describes a kernel error. Recoverable kernel errors are defined as
// package-level pointers to an Error so that callers can compare them by
// identity; invariant violations are never returned as an Error but are
// reported through kfmt.Panic instead.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// String returns the error message prefixed by the module name.
func (e *Error) String() string {
	return "[" + e.Module + "] " + e.Message
}
