package capture

import (
	"fmt"
	"sort"
)

// ChannelID identifies an input channel of a capture (a logic analyzer
// probe). Undefined marks an optional signal that was not captured.
type ChannelID int

// Undefined is the ChannelID of a signal that is not configured.
const Undefined ChannelID = -1

// Defined reports whether id refers to a real channel.
func (id ChannelID) Defined() bool {
	return id >= 0
}

func (id ChannelID) String() string {
	if !id.Defined() {
		return "none"
	}
	return fmt.Sprintf("%d", int(id))
}

// Channel is a recorded digital signal: its level at sample 0 and the sorted
// sample numbers at which it toggles. A toggle at sample n means the new level
// is visible from sample n onward.
type Channel struct {
	Initial bool
	Edges   []uint64
}

// NewChannel returns a channel that starts at the given level.
func NewChannel(initial bool) *Channel {
	return &Channel{Initial: initial}
}

// Level returns the signal level at the given sample.
func (c *Channel) Level(sample uint64) bool {
	n := sort.Search(len(c.Edges), func(i int) bool { return c.Edges[i] > sample })
	return c.Initial != (n%2 == 1)
}

// Last returns the level after the final edge.
func (c *Channel) Last() bool {
	return c.Initial != (len(c.Edges)%2 == 1)
}

// Toggle records an edge at sample. Samples must be strictly increasing.
func (c *Channel) Toggle(sample uint64) error {
	if n := len(c.Edges); n > 0 && sample <= c.Edges[n-1] {
		return fmt.Errorf("capture: edge at sample %d is not after previous edge at %d", sample, c.Edges[n-1])
	}
	c.Edges = append(c.Edges, sample)
	return nil
}

// Set drives the channel to level at sample, recording an edge only when the
// level actually changes.
func (c *Channel) Set(sample uint64, level bool) error {
	if c.Last() == level {
		return nil
	}
	if sample == 0 && len(c.Edges) == 0 {
		c.Initial = level
		return nil
	}
	return c.Toggle(sample)
}

// Cursor returns a new forward-only cursor positioned at sample 0.
func (c *Channel) Cursor() Cursor {
	cur := &channelCursor{ch: c}
	for cur.next < len(c.Edges) && c.Edges[cur.next] == 0 {
		cur.next++
	}
	return cur
}

// Cursor is a forward-only view over one channel. The position never moves
// backwards; seeking behind the current sample is a no-op.
type Cursor interface {
	// Sample returns the current position.
	Sample() uint64
	// Bit returns the level at the current position.
	Bit() bool
	// AdvanceTo moves the cursor to the given absolute sample.
	AdvanceTo(sample uint64)
	// AdvanceToNextEdge moves to the next edge after the current position.
	// It returns false, without moving, when the capture has no more edges.
	AdvanceToNextEdge() bool
	// NextEdge returns the sample of the next edge after the current position.
	NextEdge() (uint64, bool)
	// WouldCrossEdge reports whether advancing to sample would pass over (or
	// land on) an edge.
	WouldCrossEdge(sample uint64) bool
}

type channelCursor struct {
	ch     *Channel
	sample uint64
	next   int // index of the first edge strictly after sample
}

func (c *channelCursor) Sample() uint64 {
	return c.sample
}

func (c *channelCursor) Bit() bool {
	return c.ch.Initial != (c.next%2 == 1)
}

func (c *channelCursor) AdvanceTo(sample uint64) {
	if sample <= c.sample {
		return
	}
	c.sample = sample
	edges := c.ch.Edges
	for c.next < len(edges) && edges[c.next] <= sample {
		c.next++
	}
}

func (c *channelCursor) AdvanceToNextEdge() bool {
	if c.next >= len(c.ch.Edges) {
		return false
	}
	c.sample = c.ch.Edges[c.next]
	c.next++
	return true
}

func (c *channelCursor) NextEdge() (uint64, bool) {
	if c.next >= len(c.ch.Edges) {
		return 0, false
	}
	return c.ch.Edges[c.next], true
}

func (c *channelCursor) WouldCrossEdge(sample uint64) bool {
	next, ok := c.NextEdge()
	return ok && next <= sample
}
