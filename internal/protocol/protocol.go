// Package protocol defines the wire envelope of the evaluation endpoint.
//
// Every inbound text frame is one source fragment, taken verbatim. Every
// outbound frame is exactly one JSON object of one of two shapes:
//
//	{"ok":"<display string>"}
//	{"err":["<syntax error>", ...]}
//
// The codec is stateless; all functions are pure mappings.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/gorilla/websocket"
)

var (
	// ErrNonText is returned for inbound frames that are not text frames
	ErrNonText = errors.New("non-text frame")
	// ErrInvalidUTF8 is returned for text frames whose payload is not UTF-8
	ErrInvalidUTF8 = errors.New("text frame is not valid UTF-8")
	// ErrInvalidResponse is returned when a Response is neither ok nor err
	ErrInvalidResponse = errors.New("response must be exactly one of ok or err")
)

// Kind discriminates the two envelope variants
type Kind int

const (
	KindOK Kind = iota + 1
	KindErr
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindErr:
		return "err"
	default:
		return "invalid"
	}
}

// Response is one reply to one inbound message. Build it with OK or Err;
// the zero value is not a valid response.
type Response struct {
	Kind   Kind
	Value  string
	Errors []string
}

// OK builds a successful response carrying a display string
func OK(value string) Response {
	return Response{Kind: KindOK, Value: value}
}

// Err builds a failed response carrying syntax error messages in order
func Err(errs []string) Response {
	cp := make([]string, len(errs))
	copy(cp, errs)
	return Response{Kind: KindErr, Errors: cp}
}

// IsOK reports whether r is the ok variant
func (r Response) IsOK() bool { return r.Kind == KindOK }

type okEnvelope struct {
	OK string `json:"ok"`
}

type errEnvelope struct {
	Err []string `json:"err"`
}

// Encode serializes r into a single JSON text frame payload
func Encode(r Response) ([]byte, error) {
	var v interface{}
	switch r.Kind {
	case KindOK:
		v = okEnvelope{OK: r.Value}
	case KindErr:
		errs := r.Errors
		if errs == nil {
			errs = []string{}
		}
		v = errEnvelope{Err: errs}
	default:
		return nil, ErrInvalidResponse
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Decode parses an outbound frame payload back into a Response. Objects
// carrying both keys, neither key, or any other key are rejected.
func Decode(data []byte) (Response, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Response{}, fmt.Errorf("failed to decode response: %w", err)
	}

	okRaw, hasOK := fields["ok"]
	errRaw, hasErr := fields["err"]
	if hasOK == hasErr || len(fields) != 1 {
		return Response{}, ErrInvalidResponse
	}

	if hasOK {
		var value string
		if err := json.Unmarshal(okRaw, &value); err != nil {
			return Response{}, fmt.Errorf("failed to decode ok value: %w", err)
		}
		return OK(value), nil
	}

	var errs []string
	if err := json.Unmarshal(errRaw, &errs); err != nil {
		return Response{}, fmt.Errorf("failed to decode err list: %w", err)
	}
	return Err(errs), nil
}

// DecodeInbound maps a received frame to source text. Only text frames with
// valid UTF-8 payloads are accepted.
func DecodeInbound(messageType int, payload []byte) (string, error) {
	if messageType != websocket.TextMessage {
		return "", fmt.Errorf("%w: type %d", ErrNonText, messageType)
	}
	if !utf8.Valid(payload) {
		return "", ErrInvalidUTF8
	}
	return string(payload), nil
}
