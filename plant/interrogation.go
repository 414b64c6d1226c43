package plant

// DefaultBatchSize is the number of elements per interrogation batch.
const DefaultBatchSize = 20

// InterrogationResult is the complete answer to one interrogation request.
type InterrogationResult struct {
	Accepted bool
	Batches  []Batch
}

// Interrogate builds the response to an interrogation of the given scope
// from a consistent snapshot of the registry. It never touches report snapshots.
// Analog batches fill straight across the inverter, environment and totals
// groups and only the final remainder is flushed, so the analog section is
// always ceil(analogs/batchSize) batches.
func Interrogate(reg *Registry, scope Scope, batchSize int) InterrogationResult {
	if scope != ScopeStation {
		return InterrogationResult{}
	}
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	snapshot := reg.ForEach(func(p Point) bool {
		return p.Kind == Analog || p.Kind == BinaryStatus
	})

	var (
		batches []Batch
		analog  []Item
		status  []Item
	)
	flush := func() {
		if len(analog) == 0 {
			return
		}
		batches = append(batches, Batch{Cause: CauseInterrogated, Kind: Analog, Items: analog})
		analog = nil
	}

	for _, group := range []Group{GroupInverter, GroupEnvironment, GroupTotals} {
		for _, p := range snapshot {
			if p.Group != group {
				continue
			}
			analog = append(analog, Item{Address: p.Address, Name: p.Name, Value: p.Value})
			if len(analog) >= batchSize {
				flush()
			}
		}
	}
	flush()

	for _, p := range snapshot {
		if p.Kind == BinaryStatus {
			status = append(status, Item{Address: p.Address, Name: p.Name, State: p.State})
		}
	}
	if len(status) > 0 {
		batches = append(batches, Batch{Cause: CauseInterrogated, Kind: BinaryStatus, Items: status})
	}

	return InterrogationResult{Accepted: true, Batches: batches}
}
