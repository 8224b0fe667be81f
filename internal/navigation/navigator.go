// Package navigation owns the current slide index of a presentation session.
package navigation

import (
	"sync"

	"github.com/ayusman/airdeck/internal/gesture"
)

// SlideCounter supplies the number of slides. The count may change between
// calls, for example while the deck is being edited.
type SlideCounter interface {
	SlideCount() int
}

// FixedCount is a SlideCounter with a constant count.
type FixedCount int

// SlideCount returns the fixed count.
func (n FixedCount) SlideCount() int {
	return int(n)
}

// State is a snapshot of the navigation state for views.
type State struct {
	CurrentSlide int  `json:"currentSlide"`
	TotalSlides  int  `json:"totalSlides"`
	CanNext      bool `json:"canNext"`
	CanPrev      bool `json:"canPrev"`
}

// Navigator is the single writer of the slide index. Every transition is
// synchronous and leaves the index inside [0, count) whenever count > 0.
type Navigator struct {
	counter   SlideCounter
	mu        sync.Mutex
	current   int
	listeners []func(State)
}

// New creates a Navigator positioned on the first slide.
func New(counter SlideCounter) *Navigator {
	return &Navigator{counter: counter}
}

// OnChange registers fn to be called after every transition that moves the
// index. Listeners run outside the lock.
func (n *Navigator) OnChange(fn func(State)) {
	if fn == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, fn)
}

// Next advances one slide; a no-op on the last slide.
func (n *Navigator) Next() State {
	return n.transition(func(cur, count int) int {
		return min(cur+1, count-1)
	})
}

// Previous goes back one slide; a no-op on the first slide.
func (n *Navigator) Previous() State {
	return n.transition(func(cur, count int) int {
		return max(cur-1, 0)
	})
}

// First jumps to the first slide.
func (n *Navigator) First() State {
	return n.transition(func(cur, count int) int {
		return 0
	})
}

// Last jumps to the last slide.
func (n *Navigator) Last() State {
	return n.transition(func(cur, count int) int {
		return count - 1
	})
}

// GoTo jumps to slide i. Out-of-range requests are ignored.
func (n *Navigator) GoTo(i int) State {
	return n.transition(func(cur, count int) int {
		if i < 0 || i >= count {
			return cur
		}
		return i
	})
}

// HandleGesture maps swipe-right to Next and swipe-left to Previous.
func (n *Navigator) HandleGesture(g gesture.Gesture) State {
	switch g {
	case gesture.SwipeRight:
		return n.Next()
	case gesture.SwipeLeft:
		return n.Previous()
	default:
		return n.State()
	}
}

// State returns the current state, clamping the index first if the slide
// count shrank since the last transition.
func (n *Navigator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := n.counter.SlideCount()
	n.current = clamp(n.current, count)
	return snapshot(n.current, count)
}

func (n *Navigator) transition(step func(cur, count int) int) State {
	n.mu.Lock()
	count := n.counter.SlideCount()
	before := clamp(n.current, count)
	after := before
	if count > 0 {
		after = clamp(step(before, count), count)
	}
	n.current = after
	state := snapshot(after, count)
	var listeners []func(State)
	if after != before {
		listeners = append(listeners, n.listeners...)
	}
	n.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
	return state
}

func clamp(i, count int) int {
	if count <= 0 || i < 0 {
		return 0
	}
	if i >= count {
		return count - 1
	}
	return i
}

func snapshot(cur, count int) State {
	return State{
		CurrentSlide: cur,
		TotalSlides:  count,
		CanNext:      cur < count-1,
		CanPrev:      cur > 0,
	}
}
