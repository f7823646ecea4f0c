package services

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorForbidden    ErrorCode = "forbidden"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorConflict     ErrorCode = "conflict"
	ErrorUnauthorized ErrorCode = "unauthorized"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

// ConstructionError reports a malformed question bank. It is fatal: no
// survey may be rendered from a bank that produced one.
type ConstructionError struct {
	QuestionID string
	Reason     string
}

func (e *ConstructionError) Error() string {
	if e.QuestionID == "" {
		return "question bank: " + e.Reason
	}
	return fmt.Sprintf("question %s: %s", e.QuestionID, e.Reason)
}

// RangeError is returned when a trial index falls outside the trial list.
type RangeError struct {
	Index int
	Len   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("trial index %d out of range [0,%d)", e.Index, e.Len)
}

// InvalidChoiceError is returned when an option id does not belong to the trial.
type InvalidChoiceError struct {
	TrialID  string
	OptionID string
}

func (e *InvalidChoiceError) Error() string {
	return fmt.Sprintf("option %q is not part of trial %s", e.OptionID, e.TrialID)
}

// SubmissionError wraps a rejected or failed submission call. Message is what
// the participant sees.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string { return e.Message }

func (e *SubmissionError) Unwrap() error { return e.Err }

var (
	// ErrNotValid is the gating failure of a screen: the participant stays put.
	ErrNotValid = errors.New("screen input not valid")
	// ErrIllegalTransition flags an event that the current step does not accept.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrWrongScreen rejects an edit to data the current screen does not own.
	ErrWrongScreen = errors.New("not editable on the current screen")
	// ErrSubmissionInProgress rejects a submit while another is outstanding.
	ErrSubmissionInProgress = errors.New("submission already in progress")
)
