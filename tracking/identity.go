package tracking

// DisplayIDAllocator hands out compact, operator-facing identifiers.
// Raw tracker ids are large and sparse; display ids count only tracks that entered the ROI.
type DisplayIDAllocator struct {
	next int
}

// NewDisplayIDAllocator returns an allocator whose first id is 1
func NewDisplayIDAllocator() *DisplayIDAllocator {
	return &DisplayIDAllocator{next: 1}
}

// Assign gives the track a display id if it does not have one yet and returns it
func (a *DisplayIDAllocator) Assign(state *TrackState) int {
	if state.DisplayID != 0 {
		return state.DisplayID
	}
	state.DisplayID = a.next
	a.next++
	return state.DisplayID
}

// Issued returns how many display ids have been handed out
func (a *DisplayIDAllocator) Issued() int {
	return a.next - 1
}
