package api

import "errors"

// ErrInvalidRequest marks request bodies the tuner never saw.
var ErrInvalidRequest = errors.New("api: invalid request")

// requestError is an ErrInvalidRequest tied to the offending field.
type requestError struct {
	param string
	msg   string
}

func (e *requestError) Error() string {
	if e.param == "" {
		return e.msg
	}
	return e.param + ": " + e.msg
}

func (e *requestError) Unwrap() error { return ErrInvalidRequest }

func newInvalidRequest(param, msg string) error {
	return &requestError{param: param, msg: msg}
}

// paramOf returns the field an invalid request error points at, if any.
func paramOf(err error) string {
	var re *requestError
	if errors.As(err, &re) {
		return re.param
	}
	return ""
}
