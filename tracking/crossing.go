package tracking

// observe records one sighting of a track and returns the ROI edge it produced.
// It must be called in frame order for any given track.
func (s *Session) observe(obj TrackedObject, frame int) (*TrackState, CrossingEvent, Point) {
	state, ok := s.tracks[obj.TrackID]
	if !ok {
		state = &TrackState{FirstFrame: frame}
		s.tracks[obj.TrackID] = state
	}
	state.LastFrame = frame

	centroid := obj.BBox.Centroid()
	state.History = append(state.History, centroid)
	if s.opts.HistoryLimit > 0 && len(state.History) > s.opts.HistoryLimit {
		state.History = state.History[len(state.History)-s.opts.HistoryLimit:]
	}

	currentlyInside := s.roi.Contains(centroid)
	switch {
	case currentlyInside && !state.Inside:
		state.Inside = true
		state.EverInside = true
		return state, EventEntered, centroid
	case !currentlyInside && state.Inside:
		state.Inside = false
		return state, EventExited, centroid
	}
	return state, EventNone, centroid
}
