package models

// APIResponse is the envelope of every /api/v1 response.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func SuccessResponse(data any) APIResponse {
	return APIResponse{Success: true, Data: data}
}

func ErrorResponse(code, message string) APIResponse {
	return APIResponse{Error: &APIError{Code: code, Message: message}}
}

// RateLimitInfo describes the caller's position in the current window.
type RateLimitInfo struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"reset_time"`
}
