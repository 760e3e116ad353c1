package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// The closed set of failures callers branch on. Anything that matches none
// of them is an "other" error.
var (
	ErrNoInternet   = errors.New("no internet connection")
	ErrServer       = errors.New("server error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
)

type Kind int

const (
	KindOther Kind = iota
	KindNoInternet
	KindServer
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNoInternet:
		return "no_internet"
	case KindServer:
		return "server"
	case KindUnauthorized:
		return "unauthorized"
	}
	return "other"
}

// Classify maps an error returned by Client onto Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindOther
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrNoInternet):
		return KindNoInternet
	case errors.Is(err, ErrServer):
		return KindServer
	}
	return KindOther
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrServer:
		return e.Status >= 500
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrConflict:
		return e.Status == http.StatusConflict
	}
	return false
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
