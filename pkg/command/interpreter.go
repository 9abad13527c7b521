// Package command turns operator utterances into session actions.
//
// The interpreter is a two-state machine (NORMAL, AWAITING_CODE) whose state
// lives in the session; every call receives a View of it. Keyword matching is
// first-match-wins over an ordered rule table: restricted rules are checked
// before unrestricted ones, and within a tier the table order decides.
package command

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/benbjohnson/clock"
)

// Default interpreter settings.
const (
	DefaultWakeWord = "friday"
	DefaultAuthCode = "2468"
)

// Configuration errors.
var (
	ErrNoWakeWord  = errors.New("command: wake word required")
	ErrBadAuthCode = errors.New("command: auth code must be non-empty digits")
)

// Config holds interpreter settings.
type Config struct {
	WakeWord string `yaml:"wake_word"`
	AuthCode string `yaml:"auth_code"`
}

// DefaultConfig returns the demo wake word and code.
func DefaultConfig() Config {
	return Config{WakeWord: DefaultWakeWord, AuthCode: DefaultAuthCode}
}

// Validate checks the wake word and code.
func (c Config) Validate() error {
	if strings.TrimSpace(c.WakeWord) == "" {
		return ErrNoWakeWord
	}
	if c.AuthCode == "" || strings.IndexFunc(c.AuthCode, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
		return ErrBadAuthCode
	}
	return nil
}

// View is the part of the session state the interpreter reads.
type View struct {
	Authorized   bool
	AwaitingCode bool
	Lockdown     bool
	ScanActive   bool
	Danger       bool
	PeakSpeed    int
	MeanSpeed    int
	TargetCount  int
}

// Rule maps keywords to the actions they produce.
type Rule struct {
	Name       string
	Keywords   []string
	Restricted bool
	respond    func(i *Interpreter, v View) []Action
}

// Matches reports whether any keyword occurs in the utterance.
func (r Rule) Matches(utterance string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(utterance, kw) {
			return true
		}
	}
	return false
}

// restrictedRules require authorization. "disarm" precedes "arm" because it
// contains it.
var restrictedRules = []Rule{
	{Name: "lockdown", Keywords: []string{"lockdown", "level 5"}, Restricted: true,
		respond: func(*Interpreter, View) []Action {
			return []Action{Lockdown(true, PhraseLockdown)}
		}},
	{Name: "disarm", Keywords: []string{"disarm"}, Restricted: true,
		respond: func(*Interpreter, View) []Action {
			return []Action{Revoke(), Lockdown(false, PhraseDisarmed)}
		}},
	{Name: "arm", Keywords: []string{"arm"}, Restricted: true,
		respond: func(*Interpreter, View) []Action {
			return []Action{Say(PhraseArmed)}
		}},
	{Name: "weapons", Keywords: []string{"weapons"}, Restricted: true,
		respond: func(*Interpreter, View) []Action {
			return []Action{Say(PhraseWeapons)}
		}},
	{Name: "reboot", Keywords: []string{"reboot"}, Restricted: true,
		respond: func(*Interpreter, View) []Action {
			return []Action{Say(PhraseReboot)}
		}},
}

var unrestrictedRules = []Rule{
	{Name: "scan", Keywords: []string{"scan"},
		respond: func(*Interpreter, View) []Action {
			return []Action{Scan(true, PhraseScan)}
		}},
	{Name: "status", Keywords: []string{"status"},
		respond: func(_ *Interpreter, v View) []Action {
			if v.TargetCount > 0 {
				return []Action{Say(PhraseSuspicious)}
			}
			return []Action{Say(PhraseClear)}
		}},
	{Name: "shutdown", Keywords: []string{"shutdown", "shut down"},
		respond: func(*Interpreter, View) []Action {
			return []Action{PowerDown(PhraseOff)}
		}},
	{Name: "time", Keywords: []string{"time"},
		respond: func(i *Interpreter, _ View) []Action {
			return []Action{Say("The time is " + i.clock.Now().Format("03:04 PM") + ".")}
		}},
	{Name: "google", Keywords: []string{"google"},
		respond: func(i *Interpreter, _ View) []Action {
			if i.open != nil {
				if err := i.open(NetworkURL); err != nil {
					return []Action{Say(PhraseOffline)}
				}
			}
			return []Action{Say(PhraseGoogle)}
		}},
	{Name: "report", Keywords: []string{"report"},
		respond: func(_ *Interpreter, v View) []Action {
			return []Action{Say(fmt.Sprintf("%s Peak speed %d. Average speed %d.", PhraseReport, v.PeakSpeed, v.MeanSpeed))}
		}},
	{Name: "speed", Keywords: []string{"speed", "peak"},
		respond: func(_ *Interpreter, v View) []Action {
			return []Action{Say(fmt.Sprintf("Peak speed recorded: %d.", v.PeakSpeed))}
		}},
	{Name: "clear", Keywords: []string{"clear", "reset"},
		respond: func(*Interpreter, View) []Action {
			return []Action{Scan(false, ""), Lockdown(false, PhraseReset)}
		}},
	{Name: "help", Keywords: []string{"help"},
		respond: func(*Interpreter, View) []Action {
			return []Action{Say(PhraseHelp)}
		}},
}

// NetworkURL is opened by the google command.
const NetworkURL = "https://www.google.com"

// Opener opens a URL for the operator.
type Opener func(url string) error

// Interpreter resolves utterances to actions.
type Interpreter struct {
	config Config
	clock  clock.Clock
	open   Opener
	rules  []Rule
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithClock sets the clock used for the time command.
func WithClock(c clock.Clock) Option {
	return func(i *Interpreter) {
		i.clock = c
	}
}

// WithOpener sets how the google command opens its page. Without one the
// command only speaks.
func WithOpener(o Opener) Option {
	return func(i *Interpreter) {
		i.open = o
	}
}

// New creates an interpreter. The config must be valid.
func New(cfg Config, opts ...Option) (*Interpreter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.WakeWord = strings.ToLower(strings.TrimSpace(cfg.WakeWord))

	i := &Interpreter{
		config: cfg,
		clock:  clock.New(),
		rules:  append(append([]Rule(nil), restrictedRules...), unrestrictedRules...),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Config returns the interpreter configuration.
func (i *Interpreter) Config() Config {
	return i.config
}

// Rules returns the rule table in evaluation order.
func (i *Interpreter) Rules() []Rule {
	return append([]Rule(nil), i.rules...)
}

// Interpret resolves one utterance against the session view.
//
// While a code is pending the whole utterance is a code attempt. Otherwise an
// utterance without the wake word yields no actions, and any utterance with it
// yields at least one.
func (i *Interpreter) Interpret(utterance string, v View) []Action {
	u := strings.ToLower(strings.TrimSpace(utterance))

	if v.AwaitingCode {
		return []Action{i.submitCode(u)}
	}

	if !strings.Contains(u, i.config.WakeWord) {
		return nil
	}

	rule, ok := i.Match(u)
	if !ok {
		return []Action{Say(PhraseStandby)}
	}
	if rule.Restricted && !v.Authorized {
		return []Action{AskForCode(PhraseAuthRequired)}
	}
	return rule.respond(i, v)
}

// Match returns the first rule matching the utterance.
func (i *Interpreter) Match(utterance string) (Rule, bool) {
	for _, r := range i.rules {
		if r.Matches(utterance) {
			return r, true
		}
	}
	return Rule{}, false
}

// submitCode checks for the code as a substring, also accepting digits spoken
// with gaps ("2 4 6 8").
func (i *Interpreter) submitCode(u string) Action {
	compact := strings.Join(strings.Fields(u), "")
	if strings.Contains(u, i.config.AuthCode) || strings.Contains(compact, i.config.AuthCode) {
		return Code(true, PhraseAuthConfirmed)
	}
	return Code(false, PhraseAuthFailed)
}
