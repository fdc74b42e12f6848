package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/hashgraph/guardian-sub011/internal/dryrun"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected operation or failed scenarios
	ExitCommandError = 2 // Command error (bad configuration, storage failure, etc.)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormat selects how results are rendered. It implements
// pflag.Value so an invalid --format is rejected while flags are parsed.
type OutputFormat string

// Output formats.
const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []OutputFormat{FormatText, FormatJSON}

var _ pflag.Value = (*OutputFormat)(nil)

func (f *OutputFormat) String() string { return string(*f) }

// Set implements pflag.Value.
func (f *OutputFormat) Set(s string) error {
	for _, valid := range ValidFormats {
		if OutputFormat(s) == valid {
			*f = valid
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be one of %v", s, ValidFormats)
}

// Type implements pflag.Value.
func (f *OutputFormat) Type() string { return "format" }

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    OutputFormat
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // dryrun error code or E_COMMAND
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
// Text output relies on the data's String method where it has one.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == FormatJSON {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == FormatJSON {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail renders err and returns it as an ExitError. Rejections carrying a
// dryrun error code exit with ExitFailure; anything else is a command error.
func (f *OutputFormatter) Fail(message string, err error) error {
	exitCode, code := ExitCommandError, "E_COMMAND"
	var details any

	var dErr *dryrun.Error
	if errors.As(err, &dErr) {
		exitCode, code = ExitFailure, string(dErr.Code)
		details = errorDetails(dErr)
	}
	if outErr := f.Error(code, fmt.Sprintf("%s: %v", message, err), details); outErr != nil {
		return outErr
	}
	return WrapExitError(exitCode, message, err)
}

func errorDetails(e *dryrun.Error) map[string]string {
	details := map[string]string{}
	if e.RunID != "" {
		details["run_id"] = e.RunID
	}
	if e.Account != "" {
		details["account"] = e.Account
	}
	if e.Token != "" {
		details["token"] = e.Token
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Verbose logs go to ErrWriter so JSON output stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
