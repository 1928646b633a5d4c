package services

import (
	"errors"
	"fmt"
)

// ===== SENTINEL ERRORS =====

var (
	ErrAssessmentNotFound = errors.New("assessment not found")
	ErrPartNotFound       = errors.New("part not found")
	ErrPoolNotFound       = errors.New("pool not found")
	ErrQuestionNotFound   = errors.New("question not found")
	ErrSnapshotNotFound   = errors.New("snapshot not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrAnswerNotFound     = errors.New("answer not found")
	ErrUserNotFound       = errors.New("user not found")

	ErrAssessmentNotEditable = errors.New("published assessment with submissions cannot change this setting")
	ErrSubmissionNotOpen     = errors.New("submission is not in progress")
	ErrSubmissionNotComplete = errors.New("submission is not complete")
	ErrPoolInUse             = errors.New("pool is referenced by assessment parts")
	ErrQuestionInUse         = errors.New("question is referenced by assessment parts")
	ErrReviewNotAvailable    = errors.New("review is not available for this submission")
)

// ===== PERMISSION ERROR =====

// PermissionError reports a denied action with enough context to log and to
// answer 403s.
type PermissionError struct {
	UserID     string      `json:"user_id"`
	ResourceID interface{} `json:"resource_id"`
	Resource   string      `json:"resource"`
	Action     string      `json:"action"`
	Reason     string      `json:"reason"`
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %v: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID interface{}, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// IsPermissionError reports whether err is a permission denial.
func IsPermissionError(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// ===== VALIDATION ERROR =====

// ValidationError reports one rejected field.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// IsValidationError reports whether err is a validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
