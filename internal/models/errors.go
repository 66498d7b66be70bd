package models

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthExpired means the access token could not be refreshed. It is fatal to a run.
	ErrAuthExpired    = errors.New("authorization expired")
	ErrNotConnected   = errors.New("source is not connected")
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrUnknownSource  = errors.New("unknown source")
	// ErrUnexpected marks a run aborted by a failure outside any resource task.
	ErrUnexpected = errors.New("sync aborted unexpectedly")

	ErrPageFetch         = errors.New("page fetch failed")
	ErrMalformedResponse = errors.New("malformed response")
	ErrWriteCommit       = errors.New("write commit failed")
)

// PageFetchError is returned when one page request fails at the network or HTTP level.
type PageFetchError struct {
	Offset     int
	StatusCode int
	Err        error
}

func (e *PageFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("page at offset %d failed with status %d: %v", e.Offset, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("page at offset %d failed: %v", e.Offset, e.Err)
}

func (e *PageFetchError) Unwrap() error {
	return e.Err
}

func (e *PageFetchError) Is(target error) bool {
	return target == ErrPageFetch
}

// MalformedResponseError is returned when a page body cannot be decoded.
type MalformedResponseError struct {
	Offset int
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response at offset %d: %v", e.Offset, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// WriteCommitError is returned when a batch could not be committed to the document store.
type WriteCommitError struct {
	Collection string
	BatchSize  int
	Err        error
}

func (e *WriteCommitError) Error() string {
	return fmt.Sprintf("failed to commit %d records to %s: %v", e.BatchSize, e.Collection, e.Err)
}

func (e *WriteCommitError) Unwrap() error {
	return e.Err
}

func (e *WriteCommitError) Is(target error) bool {
	return target == ErrWriteCommit
}
