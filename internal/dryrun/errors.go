package dryrun

import (
	"errors"
	"fmt"
)

// Error is a dry-run domain error.
//
// Ledger and messaging operations return *Error for violated preconditions;
// callers match them with errors.Is against the sentinels below, which
// compare by Code only.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run.
	RunID string

	// Account and Token identify the ledger pair, when relevant.
	Account string
	Token   string
}

// ErrorCode categorizes dry-run errors.
type ErrorCode string

const (
	// CodeConfiguration indicates an entity type without a registered tag.
	CodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// CodeAlreadyAssociated indicates the token is already in the account's token map.
	CodeAlreadyAssociated ErrorCode = "ALREADY_ASSOCIATED"

	// CodeNotAssociated indicates the token is not in the account's token map.
	CodeNotAssociated ErrorCode = "NOT_ASSOCIATED"

	// CodeNotApplicable indicates the control is not configured for the token.
	CodeNotApplicable ErrorCode = "NOT_APPLICABLE"

	// CodeAlreadyInState indicates the control already has the target value.
	CodeAlreadyInState ErrorCode = "ALREADY_IN_STATE"

	// CodeAlreadyExists indicates a uniqueness conflict.
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
)

// Sentinels for errors.Is.
var (
	ErrConfiguration     = &Error{Code: CodeConfiguration}
	ErrAlreadyAssociated = &Error{Code: CodeAlreadyAssociated}
	ErrNotAssociated     = &Error{Code: CodeNotAssociated}
	ErrNotApplicable     = &Error{Code: CodeNotApplicable}
	ErrAlreadyInState    = &Error{Code: CodeAlreadyInState}
	ErrAlreadyExists     = &Error{Code: CodeAlreadyExists}
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	} else {
		msg = fmt.Sprintf("%s: %s", e.Code, msg)
	}
	switch {
	case e.RunID != "" && e.Account != "" && e.Token != "":
		return fmt.Sprintf("%s (run=%s, account=%s, token=%s)", msg, e.RunID, e.Account, e.Token)
	case e.RunID != "":
		return fmt.Sprintf("%s (run=%s)", msg, e.RunID)
	default:
		return msg
	}
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the code of a wrapped *Error, or "" for other errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
