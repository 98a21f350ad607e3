package session

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Kind        string          `json:"kind"`
	State       json.RawMessage `json:"state,omitempty"`
	PendingCode string          `json:"pending_code,omitempty"`
}

var decoders = map[string]func(json.RawMessage) (State, error){
	"idle":                 decodeAs[Idle],
	"add_code":             decodeAs[AddCode],
	"add_name":             decodeAs[AddName],
	"add_desc":             decodeAs[AddDesc],
	"add_parent":           decodeAs[AddParent],
	"add_file":             decodeAs[AddFile],
	"edit_code":            decodeAs[EditCode],
	"edit_field":           decodeAs[EditField],
	"edit_value":           decodeAs[EditValue],
	"delete":               decodeAs[Delete],
	"add_channel_id":       decodeAs[AddChannelID],
	"add_channel_link":     decodeAs[AddChannelLink],
	"grant_premium_id":     decodeAs[GrantPremiumID],
	"grant_premium_months": decodeAs[GrantPremiumMonths],
	"revoke_premium_id":    decodeAs[RevokePremiumID],
	"await_broadcast":      decodeAs[AwaitBroadcast],
}

func decodeAs[T State](raw json.RawMessage) (State, error) {
	var v T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Marshal encodes a session as {"kind", "state", "pending_code"}.
func Marshal(s Session) ([]byte, error) {
	st := s.Current()
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: st.Kind(), State: raw, PendingCode: s.PendingCode})
}

func Unmarshal(b []byte) (Session, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Session{}, err
	}
	kind := env.Kind
	if kind == "" {
		kind = "idle"
	}
	dec, ok := decoders[kind]
	if !ok {
		return Session{}, fmt.Errorf("unknown session state %q", env.Kind)
	}
	st, err := dec(env.State)
	if err != nil {
		return Session{}, fmt.Errorf("decode %s: %w", kind, err)
	}
	return Session{State: st, PendingCode: env.PendingCode}, nil
}
