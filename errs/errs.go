// Package errs defines the error taxonomy shared by the ingestion and query pipelines.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates empty or malformed caller input.
	ErrValidation = errors.New("validation error")

	// ErrExternalService indicates an embedding, classification, NER, vector store or
	// generation call failed or timed out.
	ErrExternalService = errors.New("external service error")

	// ErrUnsupportedInput indicates an unrecognized file kind.
	ErrUnsupportedInput = errors.New("unsupported input")

	// ErrPipelineStage indicates an ingestion stage failed after earlier stages succeeded.
	ErrPipelineStage = errors.New("pipeline stage error")
)

// Validation returns an ErrValidation carrying msg.
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// ServiceError wraps a failed call to an external collaborator.
type ServiceError struct {
	Service string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ServiceError) Unwrap() []error {
	return []error{ErrExternalService, e.Err}
}

// Service wraps err as a ServiceError for the named collaborator. A nil err stays nil.
func Service(service string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Service: service, Err: err}
}

// StageError reports the ingestion stage that aborted processing of a single document.
type StageError struct {
	Stage  string
	Source string
	Err    error
}

func (e *StageError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: stage %s: %v", e.Source, e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{ErrPipelineStage, e.Err}
}

// Stage wraps err as a StageError. A nil err stays nil.
func Stage(stage, source string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Source: source, Err: err}
}
