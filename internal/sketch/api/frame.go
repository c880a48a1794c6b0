package api

import (
	"encoding/json"
	"fmt"
)

const JSONRPCVersion = "2.0"

// Frame is one JSON-RPC 2.0 message on the persistent channel. Requests carry
// ID and Method, responses carry ID and Result or Error, notifications carry
// Method without ID.
type Frame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *FrameError     `json:"error,omitempty"`
}

type FrameError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    *FrameErrorData `json:"data,omitempty"`
}

type FrameErrorData struct {
	Kind Kind `json:"kind"`
}

func (f *Frame) IsNotification() bool { return f.ID == "" && f.Method != "" }

func (f *Frame) IsResponse() bool { return f.ID != "" && f.Method == "" }

func NewRequest(id, method string, params any) (*Frame, error) {
	raw, err := Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", method, err)
	}
	return &Frame{JSONRPC: JSONRPCVersion, ID: id, Method: method, Params: raw}, nil
}

func NewNotification(method string, params any) (*Frame, error) {
	raw, err := Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s notification: %w", method, err)
	}
	return &Frame{JSONRPC: JSONRPCVersion, Method: method, Params: raw}, nil
}

func NewResult(id string, result json.RawMessage) *Frame {
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return &Frame{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

func NewErrorFrame(id string, err error) *Frame {
	kind := KindOf(err)
	return &Frame{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error: &FrameError{
			Code:    CodeOf(kind),
			Message: err.Error(),
			Data:    &FrameErrorData{Kind: kind},
		},
	}
}

// Err converts an error frame into an *Error of the matching kind.
func (e *FrameError) Err() error {
	if e == nil {
		return nil
	}
	kind := KindFromCode(e.Code)
	if e.Data != nil && e.Data.Kind != "" {
		kind = e.Data.Kind
	}
	return &Error{Kind: kind, Message: e.Message}
}

// Marshal encodes v, mapping nil and empty raw messages to JSON null.
func Marshal(v any) (json.RawMessage, error) {
	switch t := v.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if len(t) == 0 {
			return json.RawMessage("null"), nil
		}
		return t, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Unmarshal decodes raw into v. A nil v or a JSON null payload is a no-op.
func Unmarshal(raw json.RawMessage, v any) error {
	if v == nil || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &Error{Kind: KindTransport, Message: "malformed payload", Err: err}
	}
	return nil
}
