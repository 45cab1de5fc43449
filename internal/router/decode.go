package router

import (
	"bytes"
	"encoding/json"

	"conduit/internal/errcode"
)

// DecodeRequest parses one JSON request payload. It returns a *errcode.CodedError
// tagged missing_input (empty body) or invalid_json (malformed JSON) on failure.
func DecodeRequest(data []byte) (Request, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Request{}, errcode.New(errcode.MissingInput, "missing request payload")
	}
	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return Request{}, errcode.New(errcode.InvalidJSON, err.Error())
	}
	return req, nil
}

// FailureEnvelope builds a canonical failure response. providerUsed may be nil.
func FailureEnvelope(requestID string, providerUsed *string, code errcode.Code, err error) Response {
	codeStr := string(code)
	msg := err.Error()
	return Response{
		Status:       StatusFailed,
		RequestID:    requestID,
		ProviderUsed: providerUsed,
		ReplyText:    "",
		Decision:     Decision{Kind: DecisionDirectReply},
		ErrorCode:    &codeStr,
		Error:        &msg,
	}
}
