package command

// History is a fixed-size ring of executed invocations for one connection.
// The oldest entry is overwritten once the ring is full. It is not safe for
// concurrent use; each connection owns its own.
type History struct {
	buf   []*Invocation
	start int
	n     int
}

// NewHistory returns a history retaining at most size invocations. A size of
// zero or less disables retention.
func NewHistory(size int) *History {
	if size < 0 {
		size = 0
	}
	return &History{buf: make([]*Invocation, size)}
}

// Push records an executed invocation.
func (h *History) Push(inv *Invocation) {
	if len(h.buf) == 0 {
		return
	}
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = inv
		h.n++
		return
	}
	h.buf[h.start] = inv
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of retained invocations.
func (h *History) Len() int { return h.n }

// Last returns the most recent invocation, or nil.
func (h *History) Last() *Invocation {
	if h.n == 0 {
		return nil
	}
	return h.at(h.n - 1)
}

// popUndoable removes and returns the most recent invocation that can still
// be undone. Entries newer than it that cannot be undone are kept.
func (h *History) popUndoable() *Invocation {
	for i := h.n - 1; i >= 0; i-- {
		inv := h.at(i)
		if !inv.CanUndo() {
			continue
		}
		h.remove(i)
		return inv
	}
	return nil
}

func (h *History) at(i int) *Invocation {
	return h.buf[(h.start+i)%len(h.buf)]
}

func (h *History) remove(i int) {
	for j := i; j < h.n-1; j++ {
		h.buf[(h.start+j)%len(h.buf)] = h.at(j + 1)
	}
	h.buf[(h.start+h.n-1)%len(h.buf)] = nil
	h.n--
}
