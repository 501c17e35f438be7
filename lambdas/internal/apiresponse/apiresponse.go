// Package apiresponse builds the proxy-style responses returned to API Gateway.
package apiresponse

import "net/http"

// Response is the body a handler returns to the façade integration.
type Response struct {
	IsBase64Encoded bool              `json:"isBase64Encoded"`
	StatusCode      int               `json:"statusCode"`
	Headers         map[string]string `json:"headers"`
	Body            interface{}       `json:"body"`
}

// Message is the body of informational responses.
type Message struct {
	Message string `json:"message"`
}

// ErrorBody is the body of backend failure responses.
type ErrorBody struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func headers() map[string]string {
	return map[string]string{
		"Content-Type":                "application/json",
		"Access-Control-Allow-Origin": "*",
	}
}

// New returns a response with the standard headers.
func New(status int, body interface{}) Response {
	return Response{
		StatusCode: status,
		Headers:    headers(),
		Body:       body,
	}
}

// OK returns a 200 response carrying body.
func OK(body interface{}) Response {
	return New(http.StatusOK, body)
}

// BadRequest returns a 400 response with a message body.
func BadRequest(message string) Response {
	return New(http.StatusBadRequest, Message{Message: message})
}

// Failure returns a 500 response with an error code and message.
func Failure(code int, message string) Response {
	return New(http.StatusInternalServerError, ErrorBody{ErrorCode: code, ErrorMessage: message})
}
