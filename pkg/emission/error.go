package emission

// ErrorKind identifies a kind of error. It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

const (
	// ErrCheckpointAhead indicates an accumulation was requested for a target
	// height below the height of the supplied checkpoint.
	ErrCheckpointAhead = ErrorKind("ErrCheckpointAhead")

	// ErrInvalidStep indicates a sampling step of zero.
	ErrInvalidStep = ErrorKind("ErrInvalidStep")

	// ErrInvalidParams indicates emission parameters that cannot produce a
	// meaningful curve.
	ErrInvalidParams = ErrorKind("ErrInvalidParams")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies a violated calling contract. It has full support for
// errors.Is and errors.As, so the caller can ascertain the specific reason for
// the error by checking the underlying error.
type Error struct {
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

func contractError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}
