package main

import (
	"net/http"
	"time"
)

// Error types reported in Result.Error.Type.
const (
	errTypeGeneric = "Generic"
	errTypeProfile = "Profile"
)

// Message catalogue.
const (
	msgSomethingWentWrong = "Something went wrong. Please try again later"
	msgUnableToProcess    = "Unable to process request"
	msgBadRequest         = "Bad Request"
	msgInvalidPayload     = "Invalid Payload"
	msgInvalidRequest     = "Invalid Request"
	msgDataNotFound       = "Data Not Found"
	msgUserNotFound       = "User not found"
	msgRoleExists         = "Role already exist"
)

// APIError is the envelope for infrastructure-level failures: health,
// readiness, rate limiting and authentication.
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Details string `json:"details,omitempty"`
}

// ErrorDetail describes why a resource request failed.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Result wraps every resource response.
type Result[T any] struct {
	Content      T            `json:"content"`
	Error        *ErrorDetail `json:"error,omitempty"`
	IsSuccess    bool         `json:"isSuccess"`
	ResponseTime time.Time    `json:"responseTime"`
}

type PagedResult[T any] struct {
	Page        int `json:"page"`
	ResultCount int `json:"resultCount"`
	Content     []T `json:"content"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Code: code, Message: message})
}

func writeResult[T any](w http.ResponseWriter, status int, content T) {
	writeJSON(w, status, Result[T]{Content: content, IsSuccess: true, ResponseTime: time.Now().UTC()})
}

func writeFailure(w http.ResponseWriter, status int, typ, code, message string) {
	writeJSON(w, status, Result[any]{
		Error:        &ErrorDetail{Code: code, Message: message, Type: typ},
		ResponseTime: time.Now().UTC(),
	})
}

// Shorthands for the common failures.
func badRequest(w http.ResponseWriter, message string) {
	writeFailure(w, http.StatusBadRequest, errTypeGeneric, "BadRequest", message)
}

func somethingWentWrong(w http.ResponseWriter) {
	writeFailure(w, http.StatusInternalServerError, errTypeGeneric, "SomethingWentWrong", msgSomethingWentWrong)
}
