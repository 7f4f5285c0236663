package xhttp

import (
	"fmt"
	"net/http"
)

// Error carries HTTP specific error information.  Beyond error, it implements
// go-kit's StatusCoder and Headerer, and marshals itself as JSON so that the
// default go-kit error encoder always emits a JSON message.
type Error struct {
	Code   int
	Header http.Header
	Text   string
}

func (e *Error) StatusCode() int {
	return e.Code
}

func (e *Error) Headers() http.Header {
	return e.Header
}

func (e *Error) Error() string {
	return e.Text
}

func (e *Error) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"code": %d, "text": "%s"}`, e.Code, e.Text)), nil
}

// WriteErrorf writes a JSON message of the form {"code": %d, "message": "%s"}
// with printf-style formatting of the message text.  The response status is
// set to code.  Despite the name, nothing restricts this to error statuses.
func WriteErrorf(response http.ResponseWriter, code int, format string, parameters ...interface{}) (int, error) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(code)

	return fmt.Fprintf(
		response,
		`{"code": %d, "message": "%s"}`,
		code,
		fmt.Sprintf(format, parameters...),
	)
}

// WriteError is the print-style counterpart of WriteErrorf.  The value is
// rendered using the default fmt stringizing rules.
func WriteError(response http.ResponseWriter, code int, value interface{}) (int, error) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(code)

	return fmt.Fprintf(
		response,
		`{"code": %d, "message": "%s"}`,
		code,
		value,
	)
}
