// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

// Package validation wraps go-playground/validator with the custom tags
// used by inbound events and configuration.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// maxSnowflakeDigits bounds a decimal uint64.
const maxSnowflakeDigits = 20

var (
	instance *validator.Validate
	once     sync.Once
)

// GetValidator returns the shared validator.
func GetValidator() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
		if err := instance.RegisterValidation("snowflake", isSnowflake); err != nil {
			panic(fmt.Sprintf("validation: register snowflake: %v", err))
		}
	})
	return instance
}

// isSnowflake accepts platform identifiers: 1 to 20 ASCII digits.
func isSnowflake(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" || len(s) > maxSnowflakeDigits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FieldError is a single failed constraint.
type FieldError struct {
	field string
	tag   string
	value interface{}
	msg   string
}

func (e FieldError) Field() string { return e.field }
func (e FieldError) Tag() string   { return e.tag }
func (e FieldError) Error() string { return e.msg }

// RequestValidationError collects every failed constraint of one struct.
type RequestValidationError struct {
	errs []FieldError
}

// Errors returns the individual failures in field order.
func (e *RequestValidationError) Errors() []FieldError { return e.errs }

func (e *RequestValidationError) Error() string {
	parts := make([]string, len(e.errs))
	for i, fe := range e.errs {
		parts[i] = fe.field + ": " + fe.msg
	}
	return strings.Join(parts, "; ")
}

// APIError is the response body shape for validation failures.
type APIError struct {
	Code    string
	Message string
	Details map[string]interface{}
}

// ToAPIError renders the failures for the HTTP layer. A single failure is
// flattened into the details map; several are listed under "fields".
func (e *RequestValidationError) ToAPIError() APIError {
	if len(e.errs) == 1 {
		fe := e.errs[0]
		return APIError{
			Code:    "VALIDATION_ERROR",
			Message: fe.msg,
			Details: map[string]interface{}{"field": fe.field, "tag": fe.tag, "value": fe.value},
		}
	}
	fields := make([]map[string]interface{}, len(e.errs))
	for i, fe := range e.errs {
		fields[i] = map[string]interface{}{"field": fe.field, "tag": fe.tag, "message": fe.msg}
	}
	return APIError{
		Code:    "VALIDATION_ERROR",
		Message: e.Error(),
		Details: map[string]interface{}{"fields": fields},
	}
}

// ValidateStruct validates s and returns nil when every constraint holds.
// Non-field errors such as a nil argument are reported as a single failure.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &RequestValidationError{errs: []FieldError{{field: "request", tag: "invalid", msg: err.Error()}}}
	}
	out := make([]FieldError, len(verrs))
	for i, fe := range verrs {
		out[i] = FieldError{field: fe.Field(), tag: fe.Tag(), value: fe.Value(), msg: describe(fe)}
	}
	return &RequestValidationError{errs: out}
}

func describe(fe validator.FieldError) string {
	name, param := fe.Field(), fe.Param()
	switch fe.Tag() {
	case "required", "required_if":
		return name + " is required"
	case "snowflake":
		return name + " must be a numeric identifier"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", name, param)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", name, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", name, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, param)
	case "url":
		return name + " must be a valid URL"
	default:
		return fmt.Sprintf("%s failed %s validation", name, fe.Tag())
	}
}
