package bus

// ring is a fixed-capacity buffer of the most recent events. Oldest
// entries are overwritten once the buffer wraps.
type ring struct {
	events []Event
	next   int
	full   bool
}

func newRing(size int) *ring {
	return &ring{events: make([]Event, size)}
}

func (r *ring) add(ev Event) {
	r.events[r.next] = ev
	r.next = (r.next + 1) % len(r.events)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) len() int {
	if r.full {
		return len(r.events)
	}
	return r.next
}

// snapshot returns up to n of the newest events, oldest first.
func (r *ring) snapshot(n int) []Event {
	count := r.len()
	if n > 0 && n < count {
		count = n
	}
	if count == 0 {
		return nil
	}

	out := make([]Event, 0, count)
	start := r.next - count
	if start < 0 {
		start += len(r.events)
	}
	for i := 0; i < count; i++ {
		out = append(out, r.events[(start+i)%len(r.events)])
	}
	return out
}
