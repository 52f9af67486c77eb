package control

import "time"

// State is the last actuator state this engine commanded and had
// confirmed. It tracks intent, not ground truth; only the actuator
// itself knows the physical state.
type State string

const (
	StateOn      State = "ON"
	StateOff     State = "OFF"
	StateUnknown State = "UNKNOWN"
)

// Action is the outcome of one decision cycle.
type Action string

const (
	ActionTurnOn   Action = "TURN_ON"
	ActionTurnOff  Action = "TURN_OFF"
	ActionNoAction Action = "NO_ACTION"
)

// Override is the operator-set latch. A nil *Override means automatic
// control is unconstrained.
type Override struct {
	State State     `json:"state"`
	SetAt time.Time `json:"set_at"`
}

// Decision is the result of evaluating one blend against the thresholds
// and the latch.
type Decision struct {
	Action     Action   `json:"action"`
	Blend      *float64 `json:"blend,omitempty"`
	Suppressed bool     `json:"suppressed"`
}

// Decider is the hysteresis threshold state machine. It is not
// goroutine safe; the owning service serializes access.
type Decider struct {
	state    State
	override *Override
}

// NewDecider starts in StateUnknown with no override latched.
func NewDecider() *Decider {
	return &Decider{state: StateUnknown}
}

// State reports the last confirmed actuator state.
func (d *Decider) State() State { return d.state }

// Override reports a copy of the current latch, nil when unset.
func (d *Decider) Override() *Override {
	if d.override == nil {
		return nil
	}
	o := *d.override
	return &o
}

// Decide evaluates one cycle. An absent blend always yields NO_ACTION.
// A latched OFF override suppresses an automatic turn-on but still lets
// the blend fall below the off threshold and turn the actuator off.
// Inside the hysteresis band nothing changes.
func (d *Decider) Decide(blend *float64, thresholds Thresholds) Decision {
	if blend == nil {
		return Decision{Action: ActionNoAction}
	}
	v := *blend
	if d.override != nil && d.override.State == StateOff && v > thresholds.On {
		return Decision{Action: ActionNoAction, Blend: blend, Suppressed: true}
	}
	switch {
	case v > thresholds.On:
		return Decision{Action: ActionTurnOn, Blend: blend}
	case v < thresholds.Off:
		return Decision{Action: ActionTurnOff, Blend: blend}
	}
	return Decision{Action: ActionNoAction, Blend: blend}
}

// Confirm records that the actuator acknowledged an action. Failed or
// unconfirmed calls must not be confirmed; the tracked state then stays
// as it was and the next cycle re-attempts.
func (d *Decider) Confirm(action Action) {
	switch action {
	case ActionTurnOn:
		d.state = StateOn
	case ActionTurnOff:
		d.state = StateOff
	}
}

// Command applies a manual operator command, bypassing thresholds. A
// manual OFF latches the override so automatic control cannot turn the
// actuator back on; a manual ON clears any latch. The returned action
// is what must be sent to the actuator.
func (d *Decider) Command(state State, at time.Time) Action {
	switch state {
	case StateOff:
		d.override = &Override{State: StateOff, SetAt: at}
		return ActionTurnOff
	case StateOn:
		d.override = nil
		return ActionTurnOn
	}
	return ActionNoAction
}

// ClearOverride releases the latch.
func (d *Decider) ClearOverride() {
	d.override = nil
}
