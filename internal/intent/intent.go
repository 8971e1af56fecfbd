// internal/intent/intent.go

// Package intent maps recognized phrases to air-conditioner actions.
package intent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Action is a command for the controlled device.
type Action int

const (
	// ActionNone means the phrase matched nothing.
	ActionNone Action = iota
	ActionTurnOn
	ActionTurnOff
	ActionHeat
	ActionCool
)

func (a Action) String() string {
	switch a {
	case ActionTurnOn:
		return "turn_on"
	case ActionTurnOff:
		return "turn_off"
	case ActionHeat:
		return "heat"
	case ActionCool:
		return "cool"
	default:
		return "none"
	}
}

// ErrNoAction indicates Perform was asked to do nothing
var ErrNoAction = errors.New("no action to perform")

type rule struct {
	action  Action
	phrases []string
}

// rules are checked in order; the first phrase found in the input wins.
var rules = []rule{
	{ActionTurnOn, []string{
		"ha dle k ma z gan",
		"ha f e l ma z gan",
		"ta f i l ma z gan",
		"ha dle k et ha ma z gan",
		"ha f e l et ha ma z gan",
		"ta f i l et ha ma z gan",
	}},
	{ActionTurnOff, []string{
		"ka be ma z gan",
		"te xa be ma z gan",
		"ka be et ha ma z gan",
		"te xa be et ha ma z gan",
	}},
	{ActionHeat, []string{
		"kar po",
		"te xa mem po",
		"te xa mem et ha sa lon",
	}},
	{ActionCool, []string{
		"xam po",
		"te ka re r po",
		"te ka re r et ha sa lon",
	}},
}

// Match returns the first action whose phrase occurs in phrase.
func Match(phrase string) Action {
	phrase = strings.ToLower(phrase)
	if phrase == "" {
		return ActionNone
	}
	for _, r := range rules {
		for _, p := range r.phrases {
			if strings.Contains(phrase, p) {
				return r.action
			}
		}
	}
	return ActionNone
}

// Actuator carries out an action on the device.
type Actuator interface {
	Perform(ctx context.Context, a Action) error
}

// LogActuator logs actions instead of performing them.
type LogActuator struct {
	Logger *slog.Logger
}

// Perform logs a at info level.
func (l LogActuator) Perform(ctx context.Context, a Action) error {
	if a == ActionNone {
		return ErrNoAction
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "action", "action", a.String())
	return nil
}

// ActuatorFunc adapts a function to Actuator.
type ActuatorFunc func(ctx context.Context, a Action) error

// Perform calls f.
func (f ActuatorFunc) Perform(ctx context.Context, a Action) error {
	return f(ctx, a)
}
