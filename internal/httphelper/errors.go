package httphelper

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// Problem titles. Handlers join the underlying cause with one of these so only the sentinel text
// reaches the client.
var (
	ErrBadRequest       = errors.New("malformed encounter request")
	ErrInternal         = errors.New("encounter store failure")
	ErrNotFound         = errors.New("encounter not found")
	ErrParamKeyMissing  = errors.New("missing path parameter")
	ErrParamParse       = errors.New("path parameter is not an integer")
	ErrParamInvalid     = errors.New("path parameter must be positive")
	ErrServiceBusy      = errors.New("encounter store is busy, try again later")
	ErrQueueFull        = errors.New("maintenance queue is full, try again later")
	ErrInvalidParameter = errors.New("invalid listing parameter")
)

const problemBlank = "about:blank"

// problems maps each title sentinel to its problem type. Earlier entries win when a joined error
// carries more than one.
var problems = []struct { //nolint:gochecknoglobals
	err  error
	kind string
}{
	{ErrNotFound, "urn:encounters:problem:not-found"},
	{ErrQueueFull, "urn:encounters:problem:queue-full"},
	{ErrServiceBusy, "urn:encounters:problem:store-busy"},
	{ErrInvalidParameter, "urn:encounters:problem:invalid-listing"},
	{ErrParamKeyMissing, "urn:encounters:problem:invalid-path"},
	{ErrParamParse, "urn:encounters:problem:invalid-path"},
	{ErrParamInvalid, "urn:encounters:problem:invalid-path"},
	{ErrBadRequest, "urn:encounters:problem:malformed"},
	{ErrInternal, "urn:encounters:problem:store-failure"},
}

func NewAPIErrorf(code int, err error, message string, args ...any) APIError {
	apiErr := NewAPIError(code, err)
	apiErr.Detail = fmt.Sprintf(message, args...)

	return apiErr
}

// NewAPIError builds a problem response. The title and type come from the first known sentinel in
// err. Anything else, such as validator output, is titled by its last joined error.
func NewAPIError(code int, err error) APIError {
	apiErr := APIError{
		err:       err,
		Status:    code,
		Type:      problemBlank,
		Timestamp: time.Now(),
	}

	for _, problem := range problems {
		if errors.Is(err, problem.err) {
			apiErr.Type = problem.kind
			apiErr.Title = problem.err.Error()

			return apiErr
		}
	}

	apiErr.Title = lastJoined(err).Error()

	return apiErr
}

func lastJoined(err error) error {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return err
	}

	wrapped := joined.Unwrap()
	if len(wrapped) == 0 {
		return err
	}

	return wrapped[len(wrapped)-1]
}

// APIError is an application/problem+json body, see https://www.rfc-editor.org/rfc/rfc9457.html.
type APIError struct {
	err       error
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Status    int       `json:"status"`
	Detail    string    `json:"detail"`
	Instance  string    `json:"instance"`
	Timestamp time.Time `json:"timestamp"`
}

func (e APIError) Error() string {
	if e.err == nil {
		return e.Title
	}

	return e.err.Error()
}

func (e APIError) Unwrap() error {
	return e.err
}

// SetError records the problem for the error middleware. Handlers return right after calling it.
func SetError(ctx *gin.Context, err APIError) {
	err.Instance = ctx.Request.URL.Path

	_ = ctx.Error(err)
}
