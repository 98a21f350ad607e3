package session

// State is the admin's current multi-step action. Each step carries only the
// fields staged so far; the zero Session is Idle.
type State interface {
	Kind() string
	sealed()
}

type Idle struct{}

type AddCode struct{}

type AddName struct {
	Code string `json:"code"`
}

type AddDesc struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type AddParent struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Desc string `json:"desc"`
}

type AddFile struct {
	Code   string  `json:"code"`
	Name   string  `json:"name"`
	Desc   string  `json:"desc"`
	Parent *string `json:"parent,omitempty"`
}

type EditCode struct{}

type EditField struct {
	Code string `json:"code"`
}

type EditValue struct {
	Code  string `json:"code"`
	Field string `json:"field"`
}

type Delete struct{}

type AddChannelID struct{}

type AddChannelLink struct {
	ChannelID string `json:"channel_id"`
}

type GrantPremiumID struct{}

// GrantPremiumMonths holds the target as a numeric id, or as a username when
// the admin typed one.
type GrantPremiumMonths struct {
	UserID   int64  `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

type RevokePremiumID struct{}

type AwaitBroadcast struct{}

func (Idle) Kind() string               { return "idle" }
func (AddCode) Kind() string            { return "add_code" }
func (AddName) Kind() string            { return "add_name" }
func (AddDesc) Kind() string            { return "add_desc" }
func (AddParent) Kind() string          { return "add_parent" }
func (AddFile) Kind() string            { return "add_file" }
func (EditCode) Kind() string           { return "edit_code" }
func (EditField) Kind() string          { return "edit_field" }
func (EditValue) Kind() string          { return "edit_value" }
func (Delete) Kind() string             { return "delete" }
func (AddChannelID) Kind() string       { return "add_channel_id" }
func (AddChannelLink) Kind() string     { return "add_channel_link" }
func (GrantPremiumID) Kind() string     { return "grant_premium_id" }
func (GrantPremiumMonths) Kind() string { return "grant_premium_months" }
func (RevokePremiumID) Kind() string    { return "revoke_premium_id" }
func (AwaitBroadcast) Kind() string     { return "await_broadcast" }

func (Idle) sealed()               {}
func (AddCode) sealed()            {}
func (AddName) sealed()            {}
func (AddDesc) sealed()            {}
func (AddParent) sealed()          {}
func (AddFile) sealed()            {}
func (EditCode) sealed()           {}
func (EditField) sealed()          {}
func (EditValue) sealed()          {}
func (Delete) sealed()             {}
func (AddChannelID) sealed()       {}
func (AddChannelLink) sealed()     {}
func (GrantPremiumID) sealed()     {}
func (GrantPremiumMonths) sealed() {}
func (RevokePremiumID) sealed()    {}
func (AwaitBroadcast) sealed()     {}

// Session is one user's conversation slot. PendingCode is the code a gated
// user asked for and is kept independently of any admin action.
type Session struct {
	State       State
	PendingCode string
}

// Current returns the state, treating a nil one as Idle.
func (s Session) Current() State {
	if s.State == nil {
		return Idle{}
	}
	return s.State
}

func (s Session) IsIdle() bool {
	_, ok := s.Current().(Idle)
	return ok
}
