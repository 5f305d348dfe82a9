package znp

import "fmt"

// State is the coordinator's coarse lifecycle state (C6): a linear
// bring-up sequence with three alternative commissioning paths and a
// terminal error sink.
//
//	disconnected -> probing -> configuring -> {forming|restoring|joining}
//	                                                -> running -> stopping -> disconnected
//
// Any state other than disconnected can transition to failed on an
// unrecoverable error.
type State int

const (
	StateDisconnected State = iota
	StateProbing
	StateConfiguring
	StateForming
	StateRestoring
	StateJoining
	StateRunning
	StateStopping
	StateFailed
)

var stateNames = map[State]string{
	StateDisconnected: "disconnected",
	StateProbing:      "probing",
	StateConfiguring:  "configuring",
	StateForming:      "forming",
	StateRestoring:    "restoring",
	StateJoining:      "joining",
	StateRunning:      "running",
	StateStopping:     "stopping",
	StateFailed:       "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// validTransitions enumerates every legal state change; anything else is a
// programming error and setState panics rather than silently allowing it.
var validTransitions = map[State]map[State]bool{
	StateDisconnected: {StateProbing: true},
	StateProbing:       {StateConfiguring: true, StateFailed: true, StateDisconnected: true},
	StateConfiguring:   {StateForming: true, StateRestoring: true, StateJoining: true, StateFailed: true, StateDisconnected: true},
	StateForming:       {StateRunning: true, StateFailed: true, StateDisconnected: true},
	StateRestoring:     {StateRunning: true, StateFailed: true, StateDisconnected: true},
	StateJoining:       {StateRunning: true, StateFailed: true, StateDisconnected: true},
	StateRunning:       {StateStopping: true, StateFailed: true, StateDisconnected: true},
	StateStopping:      {StateDisconnected: true, StateFailed: true},
	StateFailed:        {StateDisconnected: true},
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	from := d.state
	if from == s {
		d.mu.Unlock()
		return
	}
	if !validTransitions[from][s] {
		d.mu.Unlock()
		panic(fmt.Sprintf("znp: illegal state transition %s -> %s", from, s))
	}
	d.state = s
	d.mu.Unlock()

	d.logger.Info("coordinator state change", "from", from, "to", s)
	d.events.Emit(Event{Type: EventStateChange, Data: s})
}

// State reports the coordinator's current lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}
