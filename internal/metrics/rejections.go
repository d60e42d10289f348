package metrics

import (
	"sort"
	"sync/atomic"
)

// Rejection labels one failed gateway operation by the reason code returned
// to the caller.
type Rejection struct {
	Op     string
	Reason string
}

// Reject counts one rejection of op with reason. The label set is bounded by
// the gateway's fixed operations and reason codes.
func (m *Metrics) Reject(op, reason string) {
	if m == nil || !m.enabled || op == "" || reason == "" {
		return
	}
	key := Rejection{Op: op, Reason: reason}
	v, ok := m.rejections.Load(key)
	if !ok {
		v, _ = m.rejections.LoadOrStore(key, new(atomic.Uint64))
	}
	v.(*atomic.Uint64).Add(1)
}

// Rejected returns the count recorded for op and reason.
func (m *Metrics) Rejected(op, reason string) uint64 {
	if m == nil {
		return 0
	}
	v, ok := m.rejections.Load(Rejection{Op: op, Reason: reason})
	if !ok {
		return 0
	}
	return v.(*atomic.Uint64).Load()
}

func (m *Metrics) rejectionSnapshot() map[Rejection]uint64 {
	out := make(map[Rejection]uint64)
	m.rejections.Range(func(k, v any) bool {
		out[k.(Rejection)] = v.(*atomic.Uint64).Load()
		return true
	})
	return out
}

// SortedRejections returns the keys of r ordered by op, then reason.
func SortedRejections(r map[Rejection]uint64) []Rejection {
	keys := make([]Rejection, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Op != keys[j].Op {
			return keys[i].Op < keys[j].Op
		}
		return keys[i].Reason < keys[j].Reason
	})
	return keys
}
