// Package tray provides the system tray front end for AirDeck.
package tray

import (
	"fmt"
	"sync"

	"github.com/ayusman/airdeck/internal/app"
	"github.com/getlantern/systray"
)

// Labels are the dynamic menu titles derived from a session snapshot.
type Labels struct {
	Title   string
	Toggle  string
	Slide   string
	Gesture string
}

// LabelsFor renders snap into menu titles.
func LabelsFor(snap app.Snapshot) Labels {
	l := Labels{Title: "AirDeck", Gesture: "Last: none"}

	det := snap.Detection
	switch {
	case det.Loading:
		l.Toggle = "◌ Loading model..."
	case det.Active:
		l.Toggle = "● AI Active"
	case det.Error != "":
		l.Toggle = "○ AI Inactive (error)"
	default:
		l.Toggle = "○ AI Inactive"
	}

	nav := snap.Navigation
	if nav.TotalSlides == 0 {
		l.Slide = "No slides"
	} else {
		l.Slide = fmt.Sprintf("Slide %d / %d", nav.CurrentSlide+1, nav.TotalSlides)
	}
	if det.LastGesture != "" {
		l.Gesture = "Last: " + string(det.LastGesture)
	}
	if snap.Feedback != "" {
		l.Title = "AirDeck · " + snap.Feedback
	}
	return l
}

// Tray is the menu bar icon. Callbacks run on the menu goroutine.
type Tray struct {
	onToggle   func()
	onNext     func()
	onPrevious func()
	onOpen     func()
	onQuit     func()
	mu         sync.RWMutex

	menuToggle      *systray.MenuItem
	menuSlide       *systray.MenuItem
	menuLastGesture *systray.MenuItem
	pending         *Labels
}

// New creates a Tray.
func New() *Tray {
	return &Tray{}
}

// OnToggle sets the callback for the gesture control toggle.
func (t *Tray) OnToggle(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnNavigate sets the callbacks for the next and previous slide items.
func (t *Tray) OnNavigate(next, previous func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onNext = next
	t.onPrevious = previous
}

// OnOpen sets the callback for the presenter page item.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback for the quit item.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the tray. It blocks until Quit is called and must run on the
// main goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit closes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("AirDeck")
	systray.SetTooltip("AirDeck gesture presenter")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem("○ AI Inactive", "Toggle gesture control")
	systray.AddSeparator()
	t.menuSlide = systray.AddMenuItem("No slides", "Current slide")
	t.menuSlide.Disable()
	t.menuLastGesture = systray.AddMenuItem("Last: none", "Last detected gesture")
	t.menuLastGesture.Disable()
	pending := t.pending
	t.mu.Unlock()

	menuNext := systray.AddMenuItem("Next slide", "Go to the next slide")
	menuPrev := systray.AddMenuItem("Previous slide", "Go to the previous slide")
	systray.AddSeparator()
	menuOpen := systray.AddMenuItem("Open Presenter...", "Open the presenter page in a browser")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit AirDeck")

	if pending != nil {
		t.apply(*pending)
	}

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.call(func() func() { return t.onToggle })
			case <-menuNext.ClickedCh:
				t.call(func() func() { return t.onNext })
			case <-menuPrev.ClickedCh:
				t.call(func() func() { return t.onPrevious })
			case <-menuOpen.ClickedCh:
				t.call(func() func() { return t.onOpen })
			case <-menuQuit.ClickedCh:
				t.call(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

// call runs the callback selected under the read lock, outside the lock.
func (t *Tray) call(pick func() func()) {
	t.mu.RLock()
	fn := pick()
	t.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Update refreshes the menu from snap. Updates before the tray is ready are
// applied once it is.
func (t *Tray) Update(snap app.Snapshot) {
	l := LabelsFor(snap)

	t.mu.Lock()
	if t.menuToggle == nil {
		t.pending = &l
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.apply(l)
}

func (t *Tray) apply(l Labels) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	systray.SetTitle(l.Title)
	t.menuToggle.SetTitle(l.Toggle)
	t.menuSlide.SetTitle(l.Slide)
	t.menuLastGesture.SetTitle(l.Gesture)
}
