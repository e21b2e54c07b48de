package types

import (
	"fmt"
	"strings"
)

// ErrorBody is the payload under the "error" key of every failed
// REST response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Details carries request context, e.g. the known sequence names.
	Details any `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// ErrorCode builds an API error code of the form <AREA>_<HTTP status>,
// e.g. "SEQUENCE_404".
func ErrorCode(area string, status int) string {
	return fmt.Sprintf("%s_%d", strings.ToUpper(area), status)
}
