// Package services defines the business logic for event conversations and
// bulk WhatsApp sends. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

// Conversation errors.
var (
	// ErrEmptyMessage is returned when a send carries empty or
	// whitespace-only text.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageNotFound indicates that the referenced message does not
	// exist in the conversation.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotAQuestion is returned when a like or reply targets a message
	// that is not a question.
	ErrNotAQuestion = errors.New("message is not a question")

	// ErrLikeConflict is returned when a like toggle repeatedly lost the
	// write race and was abandoned without applying the vote.
	ErrLikeConflict = errors.New("like toggle conflict")
)

// Bulk send errors.
var (
	// ErrBatchNotFound indicates the requested send batch does not exist.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrBatchNotRunnable is returned when a run is requested for a batch
	// that already ran or is currently running.
	ErrBatchNotRunnable = errors.New("batch already ran or is running")

	// ErrNoRecipients is returned when an uploaded workbook yields no
	// usable phone/message rows.
	ErrNoRecipients = errors.New("no recipients in workbook")
)
