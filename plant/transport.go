package plant

import "errors"

// Cause is the cause of transmission attached to a batch.
type Cause int

const (
	CauseSpontaneous Cause = iota
	CauseInterrogated
)

func (c Cause) String() string {
	switch c {
	case CauseSpontaneous:
		return "spontaneous"
	case CauseInterrogated:
		return "interrogated"
	default:
		return "unknown"
	}
}

// Item is one reported point inside a batch.
type Item struct {
	Address int
	Name    string
	Value   float64
	State   bool
}

// Batch is a set of points of one kind sharing a cause of transmission.
// A transport maps it onto a single ASDU.
type Batch struct {
	Cause Cause
	Kind  Kind
	Items []Item
}

// Scope is the qualifier of an interrogation request.
type Scope uint8

// ScopeStation is the whole-station interrogation (QOI 20).
const ScopeStation Scope = 20

// ConnEvent is a connection lifecycle notification from a transport.
type ConnEvent int

const (
	ConnOpened ConnEvent = iota
	ConnClosed
	ConnActivated
	ConnDeactivated
)

func (e ConnEvent) String() string {
	switch e {
	case ConnOpened:
		return "opened"
	case ConnClosed:
		return "closed"
	case ConnActivated:
		return "activated"
	case ConnDeactivated:
		return "deactivated"
	default:
		return "unknown"
	}
}

// Publisher accepts spontaneous batches for delivery. Enqueue must not
// wait for the network; an error means the batch was dropped.
type Publisher interface {
	Enqueue(b Batch) error
}

// Acknowledger confirms or rejects a request.
type Acknowledger interface {
	Confirm(positive bool) error
}

// Replier answers an interrogation on the connection it came from.
type Replier interface {
	Acknowledger
	Send(b Batch) error
	Terminate() error
}

// Handler is the set of operations a transport calls on the station.
type Handler interface {
	OnInterrogation(scope Scope, r Replier)
	OnCommand(addr int, on bool, a Acknowledger)
	OnConnectionEvent(ev ConnEvent, peer string)
}

// Publishers fans a batch out to several publishers. A batch counts as
// delivered when any publisher accepts it, so it returns an error only when
// every publisher failed.
type Publishers []Publisher

func (ps Publishers) Enqueue(b Batch) error {
	var errs []error
	for _, p := range ps {
		if err := p.Enqueue(b); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) < len(ps) {
		return nil
	}
	return errors.Join(errs...)
}
