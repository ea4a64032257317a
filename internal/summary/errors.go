package summary

import (
	"errors"
	"fmt"
)

// ErrMalformedPayload classifies candidates that look like a summary payload
// but cannot be used. Extract swallows it; it only shows up in debug logs.
var ErrMalformedPayload = errors.New("malformed summary payload")

var (
	errMissingSummary   = fmt.Errorf("%w: summary field missing", ErrMalformedPayload)
	errMissingSentiment = fmt.Errorf("%w: sentiment field missing", ErrMalformedPayload)
)
