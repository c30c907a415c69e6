package models

import "errors"

// Validation errors, rejected before any store access.
var (
	ErrEmptyQuery   = errors.New("query cannot be empty")
	ErrInvalidLimit = errors.New("result count out of range")
)

// ErrCollaborator marks a failed call to an external collaborator
// (embedding, reranking, or generative service). Wrapped with the service
// name and underlying cause.
var ErrCollaborator = errors.New("collaborator request failed")
