package command

import "fmt"

// Kind tags a command Action.
type Kind int

const (
	None Kind = iota
	Announce
	RequireAuth
	SubmitCode
	RevokeAuth
	SetLockdown
	SetScan
	Shutdown
)

var kindNames = [...]string{
	None:        "None",
	Announce:    "Announce",
	RequireAuth: "RequireAuth",
	SubmitCode:  "SubmitCode",
	RevokeAuth:  "RevokeAuth",
	SetLockdown: "SetLockdown",
	SetScan:     "SetScan",
	Shutdown:    "Shutdown",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Action is the result of interpreting an utterance. Only the fields relevant
// to Kind are meaningful: On for SetLockdown/SetScan, Matched for SubmitCode.
// Text, when set, is spoken after the action is applied.
type Action struct {
	Kind    Kind   `json:"kind"`
	On      bool   `json:"on,omitempty"`
	Matched bool   `json:"matched,omitempty"`
	Text    string `json:"text,omitempty"`
}

func (a Action) String() string {
	switch a.Kind {
	case SetLockdown, SetScan:
		return fmt.Sprintf("%s(%t)", a.Kind, a.On)
	case SubmitCode:
		return fmt.Sprintf("%s(%t)", a.Kind, a.Matched)
	case Announce:
		return fmt.Sprintf("%s(%q)", a.Kind, a.Text)
	default:
		return a.Kind.String()
	}
}

// Say speaks text without changing state.
func Say(text string) Action {
	return Action{Kind: Announce, Text: text}
}

// AskForCode moves the session into code entry.
func AskForCode(text string) Action {
	return Action{Kind: RequireAuth, Text: text}
}

// Code resolves a pending code entry.
func Code(matched bool, text string) Action {
	return Action{Kind: SubmitCode, Matched: matched, Text: text}
}

// Revoke drops the operator's authorization.
func Revoke() Action {
	return Action{Kind: RevokeAuth}
}

// Lockdown sets or clears the lockdown flag.
func Lockdown(on bool, text string) Action {
	return Action{Kind: SetLockdown, On: on, Text: text}
}

// Scan starts or stops scan mode.
func Scan(on bool, text string) Action {
	return Action{Kind: SetScan, On: on, Text: text}
}

// PowerDown ends the session.
func PowerDown(text string) Action {
	return Action{Kind: Shutdown, Text: text}
}
