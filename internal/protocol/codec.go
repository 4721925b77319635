package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// EncodeRequest serializes a Request as a single JSON line and writes it to w.
func EncodeRequest(w io.Writer, req *Request) error {
	if req.Protocol != ProtocolVersion {
		return fmt.Errorf("unsupported protocol version: %d", req.Protocol)
	}

	encoder := json.NewEncoder(w)
	if err := encoder.Encode(req); err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	return nil
}

// DecodeRequest deserializes one request line received from a client.
// Parsing is strict: unknown fields are rejected so client/daemon version
// skew surfaces as a protocol error rather than silent field loss.
//
// An empty command name is not rejected here; it flows through to command
// validation like any other unregistered name.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}

	if req.Protocol != ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", req.Protocol)
	}

	return &req, nil
}

// EncodeResponse serializes a Response and writes it to w, newline
// terminated. When pretty is set the object is indented; either way the
// payload stays a single JSON document so clients can relay it verbatim.
func EncodeResponse(w io.Writer, resp *Response, pretty bool) error {
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(resp, "", "    ")
	} else {
		data, err = json.Marshal(resp)
	}
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}

	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}

	return nil
}

// DecodeResponse deserializes a response document received from the daemon.
// Unknown top-level fields are preserved, not rejected: the wire contract
// allows the daemon to attach additional protocol fields at any time.
func DecodeResponse(data []byte) (*Response, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("daemon produced no output")
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("daemon output is not valid JSON: %w", err)
	}

	return &resp, nil
}
