package plant

import (
	"fmt"
	"sync"
)

// Registry is the in-memory table of every point of the station.
// Cardinality and addresses are fixed at construction.
type Registry struct {
	mu     sync.RWMutex
	points []Point
	index  map[int]int
}

// NewRegistry builds a registry over points, keeping their order.
// It panics on a duplicate address.
func NewRegistry(points []Point) *Registry {
	r := &Registry{
		points: make([]Point, len(points)),
		index:  make(map[int]int, len(points)),
	}
	copy(r.points, points)
	for i, p := range r.points {
		if _, dup := r.index[p.Address]; dup {
			panic(fmt.Sprintf("plant: duplicate point address %d", p.Address))
		}
		r.index[p.Address] = i
	}
	return r
}

// Len returns the number of points.
func (r *Registry) Len() int {
	return len(r.points)
}

// Get returns a copy of the point at addr.
func (r *Registry) Get(addr int) Point {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *r.slot(addr)
}

// Lookup is Get for addresses coming from outside the process.
func (r *Registry) Lookup(addr int) (Point, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[addr]
	if !ok {
		return Point{}, false
	}
	return r.points[i], true
}

// ForEach returns copies of all points matching pred, in registry order,
// taken under a single read lock.
func (r *Registry) ForEach(pred func(Point) bool) []Point {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Point
	for _, p := range r.points {
		if pred == nil || pred(p) {
			out = append(out, p)
		}
	}
	return out
}

// SetValue sets the value of an analog point.
func (r *Registry) SetValue(addr int, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slot(addr).Value = v
}

// SetStatus sets the state of a binary point.
func (r *Registry) SetStatus(addr int, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slot(addr).State = on
}

// Update runs fn with the write lock held, so everything fn does
// becomes visible to other callers at once.
func (r *Registry) Update(fn func(tx *Tx)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&Tx{r: r})
}

func (r *Registry) slot(addr int) *Point {
	i, ok := r.index[addr]
	if !ok {
		panic(fmt.Sprintf("plant: unknown point address %d", addr))
	}
	return &r.points[i]
}

// Tx gives lock-free access to the registry inside Update.
type Tx struct {
	r *Registry
}

// Point returns the live point at addr.
func (tx *Tx) Point(addr int) *Point {
	return tx.r.slot(addr)
}

// Lookup returns the live point at addr if it exists.
func (tx *Tx) Lookup(addr int) (*Point, bool) {
	i, ok := tx.r.index[addr]
	if !ok {
		return nil, false
	}
	return &tx.r.points[i], true
}

// Value returns the value of an analog point.
func (tx *Tx) Value(addr int) float64 {
	return tx.r.slot(addr).Value
}

// SetValue sets the value of an analog point.
func (tx *Tx) SetValue(addr int, v float64) {
	tx.r.slot(addr).Value = v
}

// Status returns the state of a binary point.
func (tx *Tx) Status(addr int) bool {
	return tx.r.slot(addr).State
}

// Each calls fn for every point in registry order.
func (tx *Tx) Each(fn func(p *Point)) {
	for i := range tx.r.points {
		fn(&tx.r.points[i])
	}
}
