package posts

import (
	"errors"
	"fmt"
)

// Sentinel errors for post operations
var (
	// ErrNotFound is returned when a post is not found by id or federation id
	ErrNotFound = errors.New("post not found")

	// ErrNotAuthor is returned when an account other than the author tries to
	// update or delete a post. Callers authorize first, so this is a bug.
	ErrNotAuthor = errors.New("account is not the author of this post")

	// ErrExternalCountOnInternalPost is returned when a counter is set directly
	// on an internal post, whose counts are derived from likes and reposts
	ErrExternalCountOnInternalPost = errors.New("counts of internal posts cannot be set directly")

	// ErrAccountNotPersisted is returned when an account without an id likes,
	// reposts or is mentioned by a post
	ErrAccountNotPersisted = errors.New("account has not been persisted")

	// ErrPrivateContent is returned when a CMS post is not publicly visible
	ErrPrivateContent = errors.New("post is not public")

	// ErrPostDeleted is returned when a deleted post is updated or replied to
	ErrPostDeleted = errors.New("post has been deleted")

	// ErrParentNotPersisted is returned when replying to a post that has no id
	ErrParentNotPersisted = errors.New("parent post has not been persisted")

	// ErrIDAlreadyAssigned is returned when a persisted post is given a different id
	ErrIDAlreadyAssigned = errors.New("post id already assigned")

	// ErrDifferentApID is returned when a post adopts a stored post with another ap id
	ErrDifferentApID = errors.New("stored post has a different ap id")
)

// ValidationError represents a validation error with field context
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error (%s): %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if error is a validation error
func IsValidationError(err error) bool {
	var valErr *ValidationError
	return errors.As(err, &valErr)
}
