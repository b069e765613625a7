/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package errors

import "net/http"

// Body is the wire shape downstream clients expect: a single element keyed by the error type,
// holding the message and the HTTP code.
type Body map[string]struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// typeForStatus maps an HTTP status to the error type key of the wrapped body. Statuses without a
// dedicated key fall back to "Error".
func typeForStatus(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "badRequest"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "itemNotFound"
	case http.StatusConflict:
		return "conflictingRequest"
	case http.StatusInternalServerError:
		return "internalServerError"
	default:
		return "Error"
	}
}

// Format wraps a status and message into the response body downstream clients parse.
func Format(code int, message string) Body {
	return Body{typeForStatus(code): {Message: message, Code: code}}
}

// FormatError wraps a taxonomy error; unknown errors surface as internal server errors without
// leaking their message.
func FormatError(err error) (int, Body) {
	code := StatusCode(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		var e *Error
		if !As(err, &e) {
			message = "an unknown exception occurred"
		}
	}
	return code, Format(code, message)
}
