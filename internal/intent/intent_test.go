package intent

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		phrase string
		want   Action
	}{
		{"ha dle k ma z gan", ActionTurnOn},
		{"ta f i l et ha ma z gan", ActionTurnOn},
		{"ka be ma z gan", ActionTurnOff},
		{"te xa be et ha ma z gan", ActionTurnOff},
		{"kar po", ActionHeat},
		{"te xa mem et ha sa lon", ActionHeat},
		{"xam po", ActionCool},
		{"te ka re r po", ActionCool},
		{"unk ka be ma z gan unk", ActionTurnOff},
		{"HA DLE K MA Z GAN", ActionTurnOn},
		{"ma z gan", ActionNone},
		{"", ActionNone},
		{"ba hei dli", ActionNone},
	}
	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			if got := Match(tt.phrase); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.phrase, got, tt.want)
			}
		})
	}
}

func TestMatch_PriorityOrder(t *testing.T) {
	// Both a turn-on and a cool phrase occur; turn-on is checked first.
	if got := Match("xam po ha dle k ma z gan"); got != ActionTurnOn {
		t.Errorf("Match() = %v, want %v", got, ActionTurnOn)
	}
}

func TestAction_String(t *testing.T) {
	tests := []struct {
		a    Action
		want string
	}{
		{ActionNone, "none"},
		{ActionTurnOn, "turn_on"},
		{ActionTurnOff, "turn_off"},
		{ActionHeat, "heat"},
		{ActionCool, "cool"},
		{Action(99), "none"},
	}
	for _, tt := range tests {
		if got := tt.a.String(); got != tt.want {
			t.Errorf("Action(%d).String() = %q, want %q", tt.a, got, tt.want)
		}
	}
}

func TestLogActuator(t *testing.T) {
	var buf bytes.Buffer
	act := LogActuator{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	if err := act.Perform(context.Background(), ActionHeat); err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if !strings.Contains(buf.String(), "action=heat") {
		t.Errorf("log = %q, want action=heat", buf.String())
	}
	if err := act.Perform(context.Background(), ActionNone); !errors.Is(err, ErrNoAction) {
		t.Errorf("Perform(none) error = %v, want ErrNoAction", err)
	}
}

func TestActuatorFunc(t *testing.T) {
	var got Action
	var act Actuator = ActuatorFunc(func(_ context.Context, a Action) error {
		got = a
		return nil
	})
	if err := act.Perform(context.Background(), ActionCool); err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if got != ActionCool {
		t.Errorf("got %v, want %v", got, ActionCool)
	}
}
