package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError is returned for every failed Web API call. Kind is one of the shared sentinel errors,
// so callers can match with errors.Is as well as errors.As.
type APIError struct {
	Status   int
	Endpoint string
	Message  string
	Kind     error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%v: %s: %s", e.Kind, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("%v: %s: %d %s", e.Kind, e.Endpoint, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

type errorBody struct {
	Error json.RawMessage `json:"error"`
	// token endpoint style
	Description string `json:"error_description"`
}

type errorObject struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// errorMessage extracts the provider's message from an error body, falling back to the status text.
func errorMessage(status int, body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && len(eb.Error) > 0 {
		var obj errorObject
		if err := json.Unmarshal(eb.Error, &obj); err == nil && obj.Message != "" {
			return obj.Message
		}
		var s string
		if err := json.Unmarshal(eb.Error, &s); err == nil && s != "" {
			if eb.Description != "" {
				return s + ": " + eb.Description
			}
			return s
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "<") {
		if len(text) > 200 {
			text = text[:200]
		}
		return text
	}
	return http.StatusText(status)
}
