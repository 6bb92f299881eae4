package shared

import (
	"errors"
	"fmt"
)

// RequestError is used when we want a specific error message and StatusCode.
// sane defaults are listed below. Handlers return them as-is and the router
// writes the inner Err message to the caller inside an error envelope.
//
// Error codes should be bubbled where the RequestError msg is expected to be
// returned to the user. If the user should see a generic error message but
// the error chain should include more detail for logging purposes, then a generic
// error should be joined that provides context
type RequestError struct {
	StatusCode int
	Err        error
}

func (r *RequestError) Error() string {
	return fmt.Sprintf("status %d: err %v", r.StatusCode, r.Err)
}

var (
	ErrMissingAuth   = &RequestError{Err: errors.New("missing authorization header"), StatusCode: 401}
	ErrInvalidFormat = &RequestError{Err: errors.New("invalid authentication format"), StatusCode: 401}
	ErrInvalidKeyLen = &RequestError{Err: errors.New("invalid API key length"), StatusCode: 401}
	ErrUnauthorized  = &RequestError{Err: errors.New("unauthorized"), StatusCode: 401}

	ErrRateLimited = &RequestError{Err: errors.New("too many requests, please slow down"), StatusCode: 429}

	ErrInvalidRequest  = &RequestError{Err: errors.New("invalid request body"), StatusCode: 400}
	ErrInvalidQuestion = &RequestError{Err: errors.New("question must be a non-empty string"), StatusCode: 400}
	ErrMissingSnapshot = &RequestError{Err: errors.New("snapshot must be a JSON object"), StatusCode: 400}

	ErrInternalServerError = &RequestError{Err: errors.New("internal server error"), StatusCode: 500}
	ErrGenerationFailed    = &RequestError{Err: errors.New("AI analysis failed"), StatusCode: 500}

	ErrFailedModelReq         = &MetricsError{Msg: "failed to send http request to model", Code: "model_http_err"}
	ErrFailedModelReqFromCode = &MetricsError{Msg: "model responded with non-200", Code: "model_http_status_err"}
	ErrFailedReadingResponse  = &MetricsError{Msg: "failed to read model response", Code: "model_response_err"}
	ErrMalformedModelResponse = &MetricsError{Msg: "model response could not be parsed", Code: "model_malformed_err"}
	ErrModelTimeout           = &MetricsError{Msg: "model request timed out", Code: "model_timeout_err"}
	ErrRateLimiterUnavailable = &MetricsError{Msg: "rate limiter backend unavailable", Code: "rate_limiter_err"}
)

type MetricsError struct {
	Msg  string
	Code string
}

func (m *MetricsError) Error() string {
	return m.String()
}

func (m *MetricsError) String() string {
	return m.Msg
}

// MetricsCode returns the code of the first MetricsError in the chain, or
// "unknown" when there is none
func MetricsCode(err error) string {
	var merr *MetricsError
	if errors.As(err, &merr) {
		return merr.Code
	}
	return "unknown"
}
