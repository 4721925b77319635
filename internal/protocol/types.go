package protocol

import "encoding/json"

// ProtocolVersion is the only wire version this daemon speaks.
const ProtocolVersion = 1

// Request represents the envelope a client sends to the daemon: one JSON
// object per line over the unix socket.
type Request struct {
	Protocol int    `json:"protocol"`
	ID       string `json:"id,omitempty"`
	Command  string `json:"command"`
	Args     []any  `json:"args,omitempty"`
	Pretty   bool   `json:"pretty,omitempty"`
}

// Response represents the envelope the daemon writes back. Error is the only
// field required on a validation failure; command handlers attach their own
// payload fields (version, sockname, pid, ...) via Fields, which are
// flattened into the top-level JSON object on the wire.
type Response struct {
	Version string
	ID      string
	Error   string

	Fields map[string]any
}

// IsError reports whether the response carries an in-band failure.
func (r *Response) IsError() bool {
	return r.Error != ""
}

// Set attaches a payload field, allocating the map on first use.
func (r *Response) Set(key string, value any) {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	r.Fields[key] = value
}

// MarshalJSON flattens the fixed envelope fields and the handler payload into
// a single top-level object. Fixed fields win on key collision.
func (r *Response) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		out[k] = v
	}
	if r.Version != "" {
		out["version"] = r.Version
	}
	if r.ID != "" {
		out["request_id"] = r.ID
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON: well-known keys populate the
// fixed fields, everything else lands in Fields. Extra keys are allowed per
// the wire contract.
func (r *Response) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Response{}
	for k, v := range raw {
		switch k {
		case "version":
			if err := json.Unmarshal(v, &r.Version); err != nil {
				return err
			}
		case "request_id":
			if err := json.Unmarshal(v, &r.ID); err != nil {
				return err
			}
		case "error":
			if err := json.Unmarshal(v, &r.Error); err != nil {
				return err
			}
		default:
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return err
			}
			r.Set(k, val)
		}
	}
	return nil
}
