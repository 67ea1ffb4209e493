package annotate

import (
	"errors"
	"fmt"

	"github.com/smartlecturer/lecturer/internal/providers"
)

// ErrorKind classifies a page failure.
type ErrorKind string

const (
	// KindTransient covers throttling, 5xx and network failures.
	KindTransient ErrorKind = "transient"
	// KindPermanent covers auth and malformed-request failures. These are
	// still retried; the classification is informational.
	KindPermanent ErrorKind = "permanent"
	// KindRender means the page could not be rasterised.
	KindRender ErrorKind = "render"
)

// ServiceError is returned once the attempt budget is exhausted.
type ServiceError struct {
	Kind     ErrorKind
	Attempts int
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s error after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// KindOf reports the kind of err. Unknown errors are transient.
func KindOf(err error) ErrorKind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	var re *RenderError
	if errors.As(err, &re) {
		return KindRender
	}
	if providers.IsTransient(err) {
		return KindTransient
	}
	return KindPermanent
}

// RenderError wraps a rasterisation failure.
type RenderError struct {
	Page int
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render page %d: %v", e.Page, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
