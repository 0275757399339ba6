package cleaner

import (
	"errors"
	"fmt"
)

// ErrRepositoryUnknown is returned if the named repository is not known by
// the store.
type ErrRepositoryUnknown struct {
	Name string
}

func (err ErrRepositoryUnknown) Error() string {
	return fmt.Sprintf("unknown repository name=%s", err.Name)
}

// ErrRepositoryNameInvalid should be used to denote an invalid repository
// name. Reason may set, indicating the cause of invalidity.
type ErrRepositoryNameInvalid struct {
	Name   string
	Reason error
}

func (err ErrRepositoryNameInvalid) Error() string {
	return fmt.Sprintf("repository name %q invalid: %v", err.Name, err.Reason)
}

func (err ErrRepositoryNameInvalid) Unwrap() error {
	return err.Reason
}

// ErrTagUnknown is returned if the given tag is not known by the tag service
type ErrTagUnknown struct {
	Repository string
	Tag        string
}

func (err ErrTagUnknown) Error() string {
	return fmt.Sprintf("unknown tag=%s:%s", err.Repository, err.Tag)
}

// ErrTagInvalid is returned for tag names that can not be stored.
type ErrTagInvalid struct {
	Tag    string
	Reason error
}

func (err ErrTagInvalid) Error() string {
	return fmt.Sprintf("tag %q invalid: %v", err.Tag, err.Reason)
}

func (err ErrTagInvalid) Unwrap() error {
	return err.Reason
}

// IsNotFound reports whether err denotes an absent repository or tag.
func IsNotFound(err error) bool {
	var repoErr ErrRepositoryUnknown
	var tagErr ErrTagUnknown
	return errors.As(err, &repoErr) || errors.As(err, &tagErr)
}
