package api

import (
	"encoding/json"
	"errors"

	"connectrpc.com/connect"
)

// HeaderErrorKind carries the exact error kind on connect error responses.
const HeaderErrorKind = "Sketch-Error-Kind"

// Codec replaces connect's protobuf JSON codec. Messages are raw JSON, so the
// same payload types serve the websocket frames and the HTTP fallback.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(v any) ([]byte, error) {
	if raw, ok := v.(*json.RawMessage); ok {
		if raw == nil || len(*raw) == 0 {
			return []byte("null"), nil
		}
		return *raw, nil
	}
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	if raw, ok := v.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	return json.Unmarshal(data, v)
}

// ToConnect converts err into a connect error that keeps its kind.
func ToConnect(err error) *connect.Error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}
	kind := KindOf(err)
	out := connect.NewError(ConnectCode(kind), errors.New(err.Error()))
	out.Meta().Set(HeaderErrorKind, string(kind))
	return out
}

// FromConnect converts an error returned by a connect client back into an *Error.
func FromConnect(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if !errors.As(err, &ce) {
		return &Error{Kind: KindTransport, Err: err}
	}
	kind := KindFromConnect(ce.Code())
	if v := Kind(ce.Meta().Get(HeaderErrorKind)); v != "" {
		kind = v
	}
	return &Error{Kind: kind, Message: ce.Message(), Err: err}
}
