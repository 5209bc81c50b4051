// Package errs holds the failure kinds surfaced by the upload engine, the
// completion poller and the conversion client.
//
// Callers match them with errors.As:
//
//	var transferErr *errs.TransferError
//	if errors.As(err, &transferErr) {
//		fmt.Println("part", transferErr.Part, "could not be uploaded")
//	}
package errs

import (
	"fmt"
	"time"
)

// TransferError means a single part failed after exhausting its retry budget.
type TransferError struct {
	UploadID string
	Part     int
	Attempts int
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("upload %s: part %d failed after %d attempt(s): %s", e.UploadID, e.Part, e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// ProtocolError means the remote service answered, but the answer is unusable:
// a required field is missing or the service reports a failure.
type ProtocolError struct {
	// Op names the remote operation, e.g. "submit", "status", "plan".
	Op string
	// JobID is set when the failure concerns a submitted job.
	JobID   string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("%s (job %s): %s", e.Op, e.JobID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// TimeoutError means the poller deadline passed before the job reached a terminal state.
type TimeoutError struct {
	JobID   string
	Elapsed time.Duration
	MaxWait time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s: conversion timeout after %s (max wait %s)", e.JobID, e.Elapsed.Round(time.Millisecond), e.MaxWait)
}

// InputError means the local source could not be read.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("read source %s: %s", e.Path, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// APIError is a non-2xx answer of the REST API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}
