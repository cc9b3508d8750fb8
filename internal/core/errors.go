// Package core defines the fundamental types and errors for MindFlow.
package core

import "errors"

// Core errors that can occur across the system
var (
	// Store errors
	ErrNotSerializable = errors.New("value cannot be serialized")
	ErrKeyNotFound     = errors.New("key not found")

	// Entity errors
	ErrTaskNotFound  = errors.New("task not found")
	ErrEventNotFound = errors.New("event not found")
	ErrIdeaNotFound  = errors.New("idea not found")

	// Collaborator errors
	ErrAssistUnavailable = errors.New("assist service unavailable")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidTab   = errors.New("invalid tab")
)
