// Package results stores decoder output and renders it as text, exports and
// structured reports.
package results

import (
	"sort"
	"sync"

	"github.com/OpenTraceLab/jtagdecode/pkg/analyzer"
)

// Store is an in-memory analyzer.Sink. Output added by the decoder stays
// pending until Commit; readers only ever see committed frames, records and
// markers, so they may run concurrently with a decode.
type Store struct {
	settings analyzer.Settings

	// pending is touched only by the decoder goroutine.
	pendingFrames  []analyzer.Frame
	pendingData    []analyzer.ShiftedData
	pendingMarkers []analyzer.Marker

	mu       sync.RWMutex
	frames   []analyzer.Frame
	data     []analyzer.ShiftedData // sorted by Start
	markers  []analyzer.Marker
	progress uint64

	onProgress func(sample uint64)
}

// NewStore returns an empty store. settings decide which channels carry
// bubbles and whether bit counts are shown.
func NewStore(settings *analyzer.Settings) *Store {
	return &Store{settings: *settings}
}

// OnProgress registers fn to be called from ReportProgress.
func (s *Store) OnProgress(fn func(sample uint64)) {
	s.onProgress = fn
}

// Settings returns the settings the store renders with.
func (s *Store) Settings() analyzer.Settings {
	return s.settings
}

// AddFrame implements analyzer.Sink.
func (s *Store) AddFrame(f analyzer.Frame) {
	s.pendingFrames = append(s.pendingFrames, f)
}

// AddShiftedData implements analyzer.Sink.
func (s *Store) AddShiftedData(d analyzer.ShiftedData) {
	s.pendingData = append(s.pendingData, d)
}

// AddMarker implements analyzer.Sink.
func (s *Store) AddMarker(m analyzer.Marker) {
	s.pendingMarkers = append(s.pendingMarkers, m)
}

// Commit publishes everything added since the previous Commit.
func (s *Store) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames = append(s.frames, s.pendingFrames...)
	for _, d := range s.pendingData {
		s.insertData(d)
	}
	s.markers = append(s.markers, s.pendingMarkers...)

	s.pendingFrames = s.pendingFrames[:0]
	s.pendingData = s.pendingData[:0]
	s.pendingMarkers = s.pendingMarkers[:0]
}

// insertData keeps s.data sorted by Start. A start sample is written once;
// later records with the same key are dropped.
func (s *Store) insertData(d analyzer.ShiftedData) {
	n := len(s.data)
	if n == 0 || s.data[n-1].Start < d.Start {
		s.data = append(s.data, d)
		return
	}
	i := sort.Search(n, func(i int) bool { return s.data[i].Start >= d.Start })
	if s.data[i].Start == d.Start {
		return
	}
	s.data = append(s.data, analyzer.ShiftedData{})
	copy(s.data[i+1:], s.data[i:])
	s.data[i] = d
}

// ReportProgress implements analyzer.Sink.
func (s *Store) ReportProgress(sample uint64) {
	s.mu.Lock()
	s.progress = sample
	s.mu.Unlock()
	if s.onProgress != nil {
		s.onProgress(sample)
	}
}

// Progress returns the last sample reported by the decoder.
func (s *Store) Progress() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// NumFrames returns the number of committed frames.
func (s *Store) NumFrames() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frames)
}

// Frame returns committed frame i.
func (s *Store) Frame(i int) (analyzer.Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.frames) {
		return analyzer.Frame{}, false
	}
	return s.frames[i], true
}

// Frames returns a copy of the committed frames.
func (s *Store) Frames() []analyzer.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]analyzer.Frame(nil), s.frames...)
}

// Markers returns a copy of the committed markers.
func (s *Store) Markers() []analyzer.Marker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]analyzer.Marker(nil), s.markers...)
}

// ShiftedData returns the record of the shift frame starting at start.
func (s *Store) ShiftedData(start uint64) (analyzer.ShiftedData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(start)
}

func (s *Store) lookup(start uint64) (analyzer.ShiftedData, bool) {
	i := sort.Search(len(s.data), func(i int) bool { return s.data[i].Start >= start })
	if i < len(s.data) && s.data[i].Start == start {
		return s.data[i], true
	}
	return analyzer.ShiftedData{}, false
}
