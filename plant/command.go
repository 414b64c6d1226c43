package plant

// InverterState is the operating state of one inverter.
type InverterState int

const (
	Stopped InverterState = iota
	Running
)

func (s InverterState) String() string {
	if s == Running {
		return "RUNNING"
	}
	return "STOPPED"
}

func stateOf(on bool) InverterState {
	if on {
		return Running
	}
	return Stopped
}

// CommandResult is the outcome of a single command.
type CommandResult struct {
	Accepted bool
	// Inverter is the 0 based inverter index, -1 when rejected.
	Inverter int
	Status   int
	From     InverterState
	To       InverterState
}

// ApplyCommand switches the inverter behind a command target address.
// Addresses that are not command targets are rejected without any change.
func ApplyCommand(reg *Registry, addr int, on bool) CommandResult {
	res := CommandResult{Inverter: -1}
	reg.Update(func(tx *Tx) {
		target, ok := tx.Lookup(addr)
		if !ok || target.Kind != BinaryCommand {
			return
		}
		status := tx.Point(target.Pair)
		res = CommandResult{
			Accepted: true,
			Inverter: status.Address - StatusBase,
			Status:   status.Address,
			From:     stateOf(status.State),
			To:       stateOf(on),
		}
		status.State = on
	})
	return res
}
