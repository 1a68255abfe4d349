package domain

// Result is the two-variant envelope every backend response uses on the wire.
// Exactly one of Ok and Err is set on a well-formed result.
type Result[T any] struct {
	Ok  *T      `json:"ok,omitempty"`
	Err *string `json:"err,omitempty"`
}

func OkResult[T any](v T) Result[T] {
	return Result[T]{Ok: &v}
}

func ErrResult[T any](err error) Result[T] {
	msg := err.Error()
	return Result[T]{Err: &msg}
}

// Unwrap matches the result exhaustively. A result carrying neither variant
// is a failure.
func (r Result[T]) Unwrap() (T, error) {
	var zero T
	switch {
	case r.Ok != nil:
		return *r.Ok, nil
	case r.Err != nil:
		return zero, &RemoteError{Message: *r.Err}
	default:
		return zero, ErrMalformedResult
	}
}

// Unit is the ok payload of operations with no result value.
type Unit struct{}
