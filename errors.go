package prestods

import (
	"fmt"

	"github.com/pkg/errors"
)

// Common sentinel errors for the prestods package.
var (
	// ErrNoTimeColumn is returned when a time series query has no time column.
	ErrNoTimeColumn = errors.New("no time column found")

	// ErrInvalidFormat is returned for a query format other than table or time_series.
	ErrInvalidFormat = errors.New("invalid query format")

	// ErrInvalidSettings is returned when datasource settings cannot be decoded.
	ErrInvalidSettings = errors.New("invalid datasource settings")

	// ErrInvalidQuery is returned when a query model cannot be decoded.
	ErrInvalidQuery = errors.New("invalid query")
)

// QueryErrorType categorizes query errors.
type QueryErrorType int

const (
	// QueryErrorTypeUnknown is an unclassified error.
	QueryErrorTypeUnknown QueryErrorType = iota
	// QueryErrorTypeInvalid indicates the query model is malformed.
	QueryErrorTypeInvalid
	// QueryErrorTypeExecution indicates Presto rejected or failed the query.
	QueryErrorTypeExecution
	// QueryErrorTypeConversion indicates the result could not be shaped into a frame.
	QueryErrorTypeConversion
	// QueryErrorTypePanic indicates a recovered panic while running the query.
	QueryErrorTypePanic
)

func (t QueryErrorType) String() string {
	switch t {
	case QueryErrorTypeInvalid:
		return "invalid"
	case QueryErrorTypeExecution:
		return "execution"
	case QueryErrorTypeConversion:
		return "conversion"
	case QueryErrorTypePanic:
		return "panic"
	default:
		return "unknown"
	}
}

// QueryError provides detailed information about a failed query.
type QueryError struct {
	Type  QueryErrorType
	RefID string
	Cause error
}

func (e *QueryError) Error() string {
	if e.RefID == "" {
		return fmt.Sprintf("%s: %v", e.Type, e.Cause)
	}
	return fmt.Sprintf("query %s %s: %v", e.RefID, e.Type, e.Cause)
}

func (e *QueryError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for QueryError.
func (e *QueryError) Is(target error) bool {
	switch e.Type {
	case QueryErrorTypeInvalid:
		return target == ErrInvalidQuery
	}
	return false
}

func newQueryError(typ QueryErrorType, refID string, cause error) *QueryError {
	return &QueryError{Type: typ, RefID: refID, Cause: cause}
}
