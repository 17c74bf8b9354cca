// Package response defines the JSON envelope shared by all API handlers.
package response

import "github.com/go-playground/validator/v10"

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var EmptyRequestBodyResponse = Response{
	Status:  StatusError,
	Message: "Request body is empty. Please provide necessary data.",
}

var BadRequestResponse = Response{
	Status:  StatusError,
	Message: "Invalid request body.",
}

var ResourceNotFoundResponse = Response{
	Status:  StatusError,
	Message: "The requested resource was not found.",
}

var LinkNotFoundResponse = Response{
	Status:  StatusError,
	Message: "The requested link was not found.",
}

var SlugTakenResponse = Response{
	Status:  StatusError,
	Message: "The requested pretty slug is already taken. Please choose another one.",
}

var SlugExhaustedResponse = Response{
	Status:  StatusError,
	Message: "Could not allocate a unique pretty slug. Please try again.",
}

var ServerErrorResponse = Response{
	Status:  StatusError,
	Message: "An internal server error occurred. Please try again later.",
}

type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Details []any  `json:"details,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func SuccessResponse(msg string, data ...any) Response {
	resp := Response{
		Status:  StatusSuccess,
		Message: msg,
	}

	if len(data) > 0 {
		resp.Data = data[0]
	}

	return resp
}

type validationError struct {
	Field string `json:"field"`
	Value any    `json:"value"`
	Issue string `json:"issue"`
}

func issueForTag(tag string) string {
	switch tag {
	case "required":
		return "This field is required."
	case "url":
		return "Invalid url."
	case "max":
		return "Value is too long."
	default:
		return "Invalid value."
	}
}

func getValidationErrors(err error) []validationError {
	var validationErrs []validationError

	errs, ok := err.(validator.ValidationErrors)
	if ok {
		for _, e := range errs {
			validationErrs = append(validationErrs, validationError{
				Field: e.Field(),
				Value: e.Value(),
				Issue: issueForTag(e.Tag()),
			})
		}
	}

	return validationErrs
}

func ValidationErrorResponse(err error) Response {
	resp := Response{
		Status:  StatusError,
		Message: "Validation failed. Please check the provided data.",
	}

	for _, e := range getValidationErrors(err) {
		resp.Details = append(resp.Details, e)
	}

	return resp
}
