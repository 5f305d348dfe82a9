package mt

import "fmt"

// Command is a single catalogue entry: everything needed to serialise a
// request and parse its response and/or its asynchronous confirm. Per
// invariant C3, adding a command is purely a matter of appending an entry
// here; no other package needs to change.
type Command struct {
	Subsystem Subsystem
	ID        uint8
	Name      string

	// ReqType is the frame type the *request* is sent as. SREQ commands
	// carry a synchronous Response; AREQ commands (fire-and-forget or
	// paired with a Confirm) never do.
	ReqType Type

	Request  []Field
	Response []Field // non-nil only for ReqType == SREQ

	// Confirm names the catalogue entry (by Name) of the AREQ indication
	// that completes this command, for commands that follow the
	// request+indication pattern (e.g. AF.DataRequest -> AF.DataConfirm).
	// Empty when there is none.
	Confirm string
}

// key identifies a catalogue entry by wire address.
type key struct {
	Subsystem Subsystem
	ID        uint8
}

// Catalogue is a lookup table of Command entries, indexed for both
// encode-time (by name) and decode-time (by subsystem+id) access.
type Catalogue struct {
	byName map[string]*Command
	byAddr map[key]*Command
}

// NewCatalogue builds a Catalogue from a flat list of commands. Panics on a
// duplicate name or address, since that can only be a programming error in
// a data table that is supposed to be a closed, mechanically-derived set.
func NewCatalogue(cmds []Command) *Catalogue {
	cat := &Catalogue{
		byName: make(map[string]*Command, len(cmds)),
		byAddr: make(map[key]*Command, len(cmds)),
	}
	for i := range cmds {
		c := &cmds[i]
		if _, dup := cat.byName[c.Name]; dup {
			panic(fmt.Sprintf("mt: duplicate command name %q", c.Name))
		}
		k := key{c.Subsystem, c.ID}
		if _, dup := cat.byAddr[k]; dup {
			panic(fmt.Sprintf("mt: duplicate command address %s:0x%02X", c.Subsystem, c.ID))
		}
		cat.byName[c.Name] = c
		cat.byAddr[k] = c
	}
	return cat
}

// ByName looks up a command by its catalogue name (e.g. "SYS.Ping").
func (c *Catalogue) ByName(name string) (*Command, bool) {
	cmd, ok := c.byName[name]
	return cmd, ok
}

// ByAddress looks up a command by its wire subsystem and id. This is what
// the decoder side of the bus uses to interpret an incoming frame; frames
// with no matching entry are surfaced as opaque frames rather than an
// error, per C3.
func (c *Catalogue) ByAddress(sub Subsystem, id uint8) (*Command, bool) {
	cmd, ok := c.byAddr[key{sub, id}]
	return cmd, ok
}

// EncodeRequest serialises vals as the DATA section of cmd's request frame.
func (c *Command) EncodeRequest(vals Values) (Frame, error) {
	data, err := Encode(c.Request, vals)
	if err != nil {
		return Frame{}, fmt.Errorf("mt: encode %s request: %w", c.Name, err)
	}
	return Frame{Type: c.ReqType, Subsystem: c.Subsystem, ID: c.ID, Data: data}, nil
}

// DecodeResponse parses an SRSP frame's DATA against cmd's response layout.
func (c *Command) DecodeResponse(data []byte) (Values, error) {
	if c.Response == nil {
		return nil, fmt.Errorf("mt: %s has no synchronous response", c.Name)
	}
	vals, _, err := Decode(c.Response, data)
	if err != nil {
		return nil, fmt.Errorf("mt: decode %s response: %w", c.Name, err)
	}
	return vals, nil
}

// DecodeIndication parses an AREQ frame's DATA against cmd's request
// layout, which for callback-only commands (subtype AREQ, no Response) also
// serves as the indication's field layout.
func (c *Command) DecodeIndication(data []byte) (Values, error) {
	vals, _, err := Decode(c.Request, data)
	if err != nil {
		return nil, fmt.Errorf("mt: decode %s indication: %w", c.Name, err)
	}
	return vals, nil
}
