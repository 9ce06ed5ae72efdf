package perfmon

// ring is a bounded metric buffer; when full, the oldest sample is dropped.
type ring struct {
	buf   []Metric
	next  int
	count int
}

func newRing(size int) *ring {
	if size <= 0 {
		size = 1
	}
	return &ring{buf: make([]Metric, size)}
}

func (r *ring) add(m Metric) {
	r.buf[r.next] = m
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// items returns samples ordered oldest to newest.
func (r *ring) items() []Metric {
	out := make([]Metric, 0, r.count)
	if r.count < len(r.buf) {
		out = append(out, r.buf[:r.count]...)
		return out
	}
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

func (r *ring) len() int { return r.count }
