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

// Package errors defines the failure taxonomy surfaced by the federation core. Every kind maps to
// an HTTP status; handlers translate kinds into the wire format with FormatError.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-exports so callers don't need both this package and the standard library one.
var (
	As = errors.As
	Is = errors.Is
)

// Kind classifies a failure. Kinds, not concrete messages, drive propagation decisions.
type Kind string

const (
	KindBadRequest           Kind = "BadRequest"
	KindNotFound             Kind = "NotFound"
	KindPodNotFound          Kind = "PodNotFound"
	KindResourceNotFound     Kind = "ResourceNotFound"
	KindEndpointNotFound     Kind = "EndpointNotFound"
	KindEndpointNotAvailable Kind = "EndpointNotAvailable"
	KindConflict             Kind = "Conflict"
	KindInvalidInput         Kind = "InvalidInput"
	KindInvalidMetadata      Kind = "InvalidMetadata"
	KindInvalidMetadataSize  Kind = "InvalidMetadataSize"
	KindOverQuota            Kind = "OverQuota"
	KindOnsetFileLimit       Kind = "OnsetFileLimitExceeded"
	KindOnsetFilePathLimit   Kind = "OnsetFilePathLimitExceeded"
	KindOnsetFileContentLimit Kind = "OnsetFileContentLimitExceeded"
	KindMetadataLimit        Kind = "MetadataLimitExceeded"
	KindPolicyNotAuthorized  Kind = "PolicyNotAuthorized"
	KindServiceUnavailable   Kind = "ServiceUnavailable"
	KindFilterNotFound       Kind = "SchedulerPodFilterNotFound"
	KindInternal             Kind = "Internal"
)

// Error is the concrete error type carried across the core. Code is the HTTP status the failure
// surfaces as when it reaches a handler.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches two taxonomy errors on kind so sentinel comparisons like
// errors.Is(err, &Error{Kind: KindNotFound}) work.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *Error) WithCause(cause error) *Error {
	out := *e
	out.cause = cause
	return &out
}

func newError(kind Kind, code int, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NewBadRequest(format string, args ...any) *Error {
	return newError(KindBadRequest, http.StatusBadRequest, format, args...)
}

func NewNotFound(format string, args ...any) *Error {
	return newError(KindNotFound, http.StatusNotFound, format, args...)
}

func NewPodNotFound(podID string) *Error {
	return newError(KindPodNotFound, http.StatusNotFound, "pod %s could not be found", podID)
}

func NewResourceNotFound(resourceType, id string) *Error {
	return newError(KindResourceNotFound, http.StatusNotFound, "%s %s could not be found", resourceType, id)
}

func NewEndpointNotFound(podID, serviceType string) *Error {
	return newError(KindEndpointNotFound, http.StatusInternalServerError,
		"endpoint for service %s in pod %s could not be found", serviceType, podID)
}

func NewEndpointNotAvailable(serviceType, url string) *Error {
	return newError(KindEndpointNotAvailable, http.StatusServiceUnavailable,
		"endpoint %s for %s is not available", url, serviceType)
}

func NewConflict(format string, args ...any) *Error {
	return newError(KindConflict, http.StatusConflict, format, args...)
}

func NewInvalidInput(format string, args ...any) *Error {
	return newError(KindInvalidInput, http.StatusBadRequest, format, args...)
}

func NewInvalidMetadata(format string, args ...any) *Error {
	return newError(KindInvalidMetadata, http.StatusBadRequest, format, args...)
}

func NewInvalidMetadataSize(format string, args ...any) *Error {
	return newError(KindInvalidMetadataSize, http.StatusBadRequest, format, args...)
}

func NewOverQuota(resource string) *Error {
	return newError(KindOverQuota, http.StatusForbidden, "quota exceeded for resources: %s", resource)
}

func NewOnsetFileLimitExceeded() *Error {
	return newError(KindOnsetFileLimit, http.StatusForbidden, "personality file limit exceeded")
}

func NewOnsetFilePathLimitExceeded() *Error {
	return newError(KindOnsetFilePathLimit, http.StatusBadRequest, "personality file path too long")
}

func NewOnsetFileContentLimitExceeded() *Error {
	return newError(KindOnsetFileContentLimit, http.StatusBadRequest, "personality file content too long")
}

func NewMetadataLimitExceeded(allowed int64) *Error {
	return newError(KindMetadataLimit, http.StatusForbidden, "maximum number of metadata items exceeds %d", allowed)
}

func NewPolicyNotAuthorized(action string) *Error {
	return newError(KindPolicyNotAuthorized, http.StatusForbidden, "policy doesn't allow %s to be performed", action)
}

func NewServiceUnavailable() *Error {
	return newError(KindServiceUnavailable, http.StatusServiceUnavailable, "the service is unavailable")
}

// NewSchedulerPodFilterNotFound reports an enabled filter name that is absent from the available
// filter registry. This is a configuration error and is fatal at startup.
func NewSchedulerPodFilterNotFound(filterName string) *Error {
	return newError(KindFilterNotFound, http.StatusInternalServerError,
		"the pod filter %s could not be found", filterName)
}

func NewInternal(format string, args ...any) *Error {
	return newError(KindInternal, http.StatusInternalServerError, format, args...)
}

func kindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsNotFound reports whether the error is any of the not-found kinds.
func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && (k == KindNotFound || k == KindPodNotFound || k == KindResourceNotFound)
}

func IsConflict(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindConflict
}

func IsEndpointNotAvailable(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindEndpointNotAvailable
}

func IsEndpointNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindEndpointNotFound
}

func IsInvalidInput(err error) bool {
	k, ok := kindOf(err)
	return ok && (k == KindInvalidInput || k == KindBadRequest || k == KindInvalidMetadata || k == KindInvalidMetadataSize)
}

func IsPolicyNotAuthorized(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindPolicyNotAuthorized
}

// StatusCode returns the HTTP status the error surfaces as; unknown errors are 500.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return http.StatusInternalServerError
}
