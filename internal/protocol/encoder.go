package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrMalformed is returned for frames that are not a request envelope.
var ErrMalformed = errors.New("malformed envelope")

// MessageEncoder turns envelopes into frames and back.
type MessageEncoder interface {
	DecodeRequest(data []byte) (*Request, error)
	EncodeResponse(resp *Response) ([]byte, error)
	EncodeNotification(n *Notification) ([]byte, error)
}

// JSONEncoder is the text-frame encoding used over the websocket.
type JSONEncoder struct{}

func NewJSONEncoder() *JSONEncoder {
	return &JSONEncoder{}
}

// DecodeRequest accepts only a JSON object whose endpoint, if present, is a
// string. Anything else is ErrMalformed.
func (e *JSONEncoder) DecodeRequest(data []byte) (*Request, error) {
	var raw struct {
		ID       json.RawMessage `json:"id"`
		Endpoint json.RawMessage `json:"endpoint"`
		Content  json.RawMessage `json:"content"`
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrMalformed
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, ErrMalformed
	}

	req := &Request{ID: raw.ID, Content: raw.Content}
	if len(raw.Endpoint) > 0 && !isNull(raw.Endpoint) {
		if err := json.Unmarshal(raw.Endpoint, &req.Endpoint); err != nil {
			return nil, ErrMalformed
		}
	}
	return req, nil
}

func (e *JSONEncoder) EncodeResponse(resp *Response) ([]byte, error) {
	if resp.Errors == nil {
		resp.Errors = []ErrorEntry{}
	}
	return json.Marshal(resp)
}

func (e *JSONEncoder) EncodeNotification(n *Notification) ([]byte, error) {
	return json.Marshal(n)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
