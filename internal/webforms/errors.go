package webforms

import (
	"fmt"
	"strings"
)

const (
	ReasonNoForm      = "no form found"
	ReasonRedirected  = "redirected"
	ReasonNoExportUrl = "no export url"
	ReasonServerError = "server error"
)

// TransportError is a failed round trip: either the connection failed (Err is set) or the
// server answered with an unexpected status.
type TransportError struct {
	Method string
	Url    string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %s %s: %s", e.Method, e.Url, e.Err.Error())
	}
	return fmt.Sprintf("transport: %s %s: unexpected status %d", e.Method, e.Url, e.Status)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError means the server did not follow the postback protocol, the session
// cannot continue and must be restarted.
type ProtocolError struct {
	Reason string
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("protocol: %s: %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("protocol: %s", e.Reason)
}

// MalformedResponseError is a delta stream whose framing could not be recovered.
// Payload holds the whole response for diagnosis.
type MalformedResponseError struct {
	Offset  int
	Reason  string
	Payload string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response at offset %d: %s", e.Offset, e.Reason)
}

// UnknownFieldError is a lookup miss. It never changes session state, so the caller may
// retry with a corrected key.
type UnknownFieldError struct {
	// Kind is what was looked up: "name", "id", "label" or "option".
	Kind string
	Key  string
	// Field is set when Kind is "option" and names the field the option was looked up in.
	Field       string
	Suggestions []string
}

func (e *UnknownFieldError) Error() string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("unknown %s '%s'", e.Kind, e.Key))
	if e.Field != "" {
		msg.WriteString(fmt.Sprintf(" in field '%s'", e.Field))
	}
	if len(e.Suggestions) > 0 {
		msg.WriteString(fmt.Sprintf(" (did you mean: %s)", strings.Join(e.Suggestions, ", ")))
	}
	return msg.String()
}
