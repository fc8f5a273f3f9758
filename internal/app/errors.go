package app

import "fmt"

// InitError reports the component that failed to start.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// RepoError reports a path that is not a usable working copy.
type RepoError struct {
	Path string
	Err  error
}

func (e *RepoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *RepoError) Unwrap() error {
	return e.Err
}
