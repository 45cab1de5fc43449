// Package errcode defines the stable error_code taxonomy carried in every
// RouterResponse envelope. Components return ordinary Go errors internally;
// the Router classifies them into one of these codes at the boundary.
package errcode

import "errors"

type Code string

const (
	MissingInput         Code = "missing_input"
	InvalidJSON          Code = "invalid_json"
	MissingText          Code = "missing_text"
	InvalidMode          Code = "invalid_mode"
	UnsupportedProvider  Code = "unsupported_provider"
	AsyncTasksDisabled   Code = "async_tasks_disabled"
	AsyncDraftFailed     Code = "async_draft_failed"
	ProviderLockedFailed Code = "provider_locked_failed"
	AllProvidersFailed   Code = "all_providers_failed"
	DecisionEngineFailed Code = "decision_engine_failed"
	RouterCrashed        Code = "router_crashed"
	RouterTimeout        Code = "router_timeout"
	InvalidPath          Code = "invalid_path"
	BridgeError          Code = "bridge_error"
)

// CodedError pairs a stable Code with a human-readable message, so a
// component can fail with enough context for the Router to fill in both
// error_code and error on the outgoing envelope without guessing.
type CodedError struct {
	Code Code
	Msg  string
	err  error
}

func (e *CodedError) Error() string { return e.Msg }

// Unwrap returns the error passed to Wrap, or nil for errors built by New.
func (e *CodedError) Unwrap() error { return e.err }

func New(code Code, msg string) *CodedError {
	return &CodedError{Code: code, Msg: msg}
}

// Wrap tags an existing error with a stable code, preserving it for
// errors.As / errors.Unwrap.
func Wrap(code Code, err error) *CodedError {
	return &CodedError{Code: code, Msg: err.Error(), err: err}
}

// AsCoded extracts a *CodedError from err via errors.As, falling back to
// RouterCrashed for any error that was never classified.
func AsCoded(err error) (*CodedError, bool) {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce, true
	}
	return &CodedError{Code: RouterCrashed, Msg: err.Error()}, false
}
