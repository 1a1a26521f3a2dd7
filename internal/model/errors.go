// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "errors"

// =============================================================================
// VALIDATION ERRORS
// =============================================================================

// ValidationCode categorizes locally detected problems.
type ValidationCode int

const (
	CodeUnknown ValidationCode = iota
	CodeEmptyPrompt
	CodeNoModelLoaded
	CodeBusy
	CodeAttachmentCount
	CodeAttachmentSize
	CodeAttachmentType
	CodeNotEditable
	CodeInvalidSetting
)

// String returns a short identifier for the code.
func (c ValidationCode) String() string {
	switch c {
	case CodeEmptyPrompt:
		return "empty_prompt"
	case CodeNoModelLoaded:
		return "no_model_loaded"
	case CodeBusy:
		return "busy"
	case CodeAttachmentCount:
		return "attachment_count"
	case CodeAttachmentSize:
		return "attachment_size"
	case CodeAttachmentType:
		return "attachment_type"
	case CodeNotEditable:
		return "not_editable"
	case CodeInvalidSetting:
		return "invalid_setting"
	default:
		return "unknown"
	}
}

// ValidationError is a problem resolved locally, without contacting the backend.
type ValidationError struct {
	Code    ValidationCode
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is matches validation errors by code so sentinels work with errors.Is.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinel errors for easy checking.
var (
	ErrEmptyPrompt   = &ValidationError{Code: CodeEmptyPrompt, Message: "please enter a message"}
	ErrNoModelLoaded = &ValidationError{Code: CodeNoModelLoaded, Message: "no model is loaded, load one first"}
	ErrBusy          = &ValidationError{Code: CodeBusy, Message: "a response is already being generated"}
)

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidationCodeOf returns the code of a ValidationError, or CodeUnknown.
func ValidationCodeOf(err error) ValidationCode {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return CodeUnknown
}
