package plant

import (
	"math"
	"sort"
	"time"
)

// DefaultCooldown is the minimum time between two spontaneous reports of one analog point.
const DefaultCooldown = 5 * time.Second

// Reporter decides which points must be reported spontaneously.
type Reporter struct {
	Cooldown time.Duration
}

// NewReporter returns a reporter with the given cool-down.
func NewReporter(cooldown time.Duration) *Reporter {
	return &Reporter{Cooldown: cooldown}
}

// Scan evaluates every analog and status point and returns one batch per
// qualifying point in ascending address order. The snapshot of each
// reported point is updated before Scan returns.
func (r *Reporter) Scan(tx *Tx, now time.Time) []Batch {
	var out []Batch
	tx.Each(func(p *Point) {
		switch p.Kind {
		case Analog:
			if !r.analogDue(p, now) {
				return
			}
			p.LastReportedValue = p.Value
			p.LastReportTime = now
			out = append(out, Batch{
				Cause: CauseSpontaneous,
				Kind:  Analog,
				Items: []Item{{Address: p.Address, Name: p.Name, Value: p.Value}},
			})
		case BinaryStatus:
			if p.State == p.LastReportedState {
				return
			}
			p.LastReportedState = p.State
			p.LastReportTime = now
			out = append(out, Batch{
				Cause: CauseSpontaneous,
				Kind:  BinaryStatus,
				Items: []Item{{Address: p.Address, Name: p.Name, State: p.State}},
			})
		}
	})
	sortBatches(out)
	return out
}

func (r *Reporter) analogDue(p *Point, now time.Time) bool {
	if math.Abs(p.Value-p.LastReportedValue) < p.Threshold {
		return false
	}
	return p.LastReportTime.IsZero() || now.Sub(p.LastReportTime) >= r.Cooldown
}

func sortBatches(bs []Batch) {
	sort.SliceStable(bs, func(i, j int) bool {
		return bs[i].Items[0].Address < bs[j].Items[0].Address
	})
}
