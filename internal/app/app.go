// Package app runs a presenter session: it connects the detection loop, the
// navigator, keyboard bindings, action plugins and the session history.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/ayusman/airdeck/internal/deck"
	"github.com/ayusman/airdeck/internal/gesture"
	"github.com/ayusman/airdeck/internal/keyboard"
	"github.com/ayusman/airdeck/internal/logging"
	"github.com/ayusman/airdeck/internal/metrics"
	"github.com/ayusman/airdeck/internal/navigation"
	"github.com/ayusman/airdeck/internal/plugin"
	"github.com/ayusman/airdeck/internal/store"
)

// Navigation sources.
const (
	SourceGesture  = "gesture"
	SourceKeyboard = "keyboard"
	SourceHTTP     = "http"
	SourceTray     = "tray"
)

// FeedbackDuration is how long a gesture label stays visible.
const FeedbackDuration = time.Second

// Feedback labels.
const (
	FeedbackNext = "Next"
	FeedbackBack = "Back"
)

// Options configure an App. Store, Plugins and Metrics are optional.
type Options struct {
	Deck       *deck.Deck
	DeckName   string
	Controller *Controller
	Store      *store.Store
	Plugins    *plugin.Dispatcher
	Metrics    *metrics.Metrics
}

// Snapshot is everything a view needs to render the session.
type Snapshot struct {
	SessionID  string           `json:"sessionId,omitempty"`
	Navigation navigation.State `json:"navigation"`
	Slide      string           `json:"slide"`
	Detection  Status           `json:"detection"`
	Feedback   string           `json:"feedback,omitempty"`
}

// App is a running presenter session.
type App struct {
	deck     *deck.Deck
	deckName string
	nav      *navigation.Navigator
	ctrl     *Controller
	store    *store.Store
	plugins  *plugin.Dispatcher
	metrics  *metrics.Metrics
	keys     *keyboard.Bindings

	// navMu serialises transitions with their recording so that events are
	// stored in the order the index changed.
	navMu sync.Mutex

	mu         sync.Mutex
	sessionID  string
	feedback   string
	feedbackAt time.Time
	listeners  []func()
	exitFns    []func()
	now        func() time.Time
}

// New creates an App. Call Open before use.
func New(opts Options) *App {
	d := opts.Deck
	if d == nil {
		d = deck.New(deck.DemoText)
	}
	a := &App{
		deck:     d,
		deckName: opts.DeckName,
		nav:      navigation.New(d),
		ctrl:     opts.Controller,
		store:    opts.Store,
		plugins:  opts.Plugins,
		metrics:  opts.Metrics,
		now:      time.Now,
	}

	a.keys = keyboard.New(keyboard.Handlers{
		OnNext:     func() { a.Next(SourceKeyboard) },
		OnPrevious: func() { a.Previous(SourceKeyboard) },
		OnFirst:    func() { a.First(SourceKeyboard) },
		OnLast:     func() { a.Last(SourceKeyboard) },
		OnExit:     a.exit,
	})

	if a.ctrl != nil {
		a.ctrl.OnGesture(a.handleGesture)
		a.ctrl.OnStatus(func(Status) { a.notify() })
	}
	return a
}

// Open starts the session record and applies stored classifier settings.
func (a *App) Open(ctx context.Context) error {
	if a.store == nil {
		return nil
	}

	sess := &store.Session{Deck: a.deckName, SlideCount: a.deck.SlideCount()}
	if err := a.store.Sessions().Create(sess); err != nil {
		return err
	}
	a.mu.Lock()
	a.sessionID = sess.ID
	a.mu.Unlock()
	logging.Info("session started", "id", sess.ID, "deck", a.deckName, "slides", sess.SlideCount)

	if a.ctrl != nil {
		cfg, ok, err := LoadClassifierSettings(a.store)
		if err != nil {
			logging.Warn("ignoring stored classifier settings", "err", err)
		} else if ok {
			if err := a.ctrl.SetClassifierConfig(cfg); err != nil {
				logging.Warn("ignoring stored classifier settings", "err", err)
			}
		}
	}
	return nil
}

// Close stops detection and ends the session record.
func (a *App) Close() error {
	if a.ctrl != nil {
		a.ctrl.Stop()
	}

	a.mu.Lock()
	id := a.sessionID
	a.mu.Unlock()
	if a.store == nil || id == "" {
		return nil
	}
	logging.Info("session ended", "id", id)
	return a.store.Sessions().End(id, a.now())
}

// SessionID returns the current session ID, empty without a store.
func (a *App) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// Deck returns the presentation.
func (a *App) Deck() *deck.Deck { return a.deck }

// Controller returns the detection controller, which may be nil.
func (a *App) Controller() *Controller { return a.ctrl }

// Keys returns the keyboard bindings.
func (a *App) Keys() *keyboard.Bindings { return a.keys }

// OnChange registers fn to be called whenever the snapshot may have changed.
func (a *App) OnChange(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// OnExit registers fn to be called when the exit key is pressed.
func (a *App) OnExit(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exitFns = append(a.exitFns, fn)
}

// Snapshot returns the current session view.
func (a *App) Snapshot() Snapshot {
	state := a.nav.State()
	s := Snapshot{
		SessionID:  a.SessionID(),
		Navigation: state,
		Slide:      a.deck.Slide(state.CurrentSlide),
		Feedback:   a.Feedback(),
	}
	if a.ctrl != nil {
		s.Detection = a.ctrl.Status()
	}
	return s
}

// Feedback returns the label of a gesture detected within the last
// FeedbackDuration, or "".
func (a *App) Feedback() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.feedback == "" || a.now().Sub(a.feedbackAt) >= FeedbackDuration {
		return ""
	}
	return a.feedback
}

// StartGestures enables gesture control.
func (a *App) StartGestures(ctx context.Context) error {
	if a.ctrl == nil {
		return nil
	}
	err := a.ctrl.Start(ctx)
	a.notify()
	return err
}

// StopGestures disables gesture control.
func (a *App) StopGestures() {
	if a.ctrl == nil {
		return
	}
	a.ctrl.Stop()
	a.notify()
}

// ToggleGestures flips gesture control and reports whether it is now on.
func (a *App) ToggleGestures(ctx context.Context) (bool, error) {
	if a.ctrl == nil {
		return false, nil
	}
	st := a.ctrl.Status()
	if st.Active || st.Loading {
		a.StopGestures()
		return false, nil
	}
	if err := a.StartGestures(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ClassifierConfig returns the active classifier tuning.
func (a *App) ClassifierConfig() gesture.Config {
	if a.ctrl == nil {
		return gesture.DefaultConfig()
	}
	return a.ctrl.ClassifierConfig()
}

// UpdateClassifierConfig validates, applies and persists classifier tuning.
func (a *App) UpdateClassifierConfig(cfg gesture.Config) error {
	if a.ctrl == nil {
		return cfg.Validate()
	}
	if err := a.ctrl.SetClassifierConfig(cfg); err != nil {
		return err
	}
	if a.store != nil {
		if err := SaveClassifierSettings(a.store, cfg); err != nil {
			return err
		}
	}
	logging.Info("classifier settings updated",
		"threshold", cfg.SwipeThresholdPx, "cooldown", cfg.Cooldown, "min_confidence", cfg.MinConfidence)
	return nil
}

// SetDeckText replaces the presentation. The current slide is clamped if the
// deck shrank.
func (a *App) SetDeckText(text string) navigation.State {
	a.navMu.Lock()
	a.deck.SetText(text)
	state := a.nav.State()
	a.navMu.Unlock()

	if a.store != nil {
		if id := a.SessionID(); id != "" {
			if err := a.store.Sessions().UpdateSlideCount(id, state.TotalSlides); err != nil {
				logging.Warn("failed to update slide count", "err", err)
			}
		}
	}
	if a.metrics != nil {
		a.metrics.CurrentSlide.Set(float64(state.CurrentSlide))
	}
	a.notify()
	return state
}

// HandleKey dispatches a DOM-style key name.
func (a *App) HandleKey(key string) keyboard.Action {
	return a.keys.Dispatch(key)
}

// Next advances one slide.
func (a *App) Next(source string) navigation.State {
	return a.navigate(source, keyboard.ActionNext, "", a.nav.Next)
}

// Previous goes back one slide.
func (a *App) Previous(source string) navigation.State {
	return a.navigate(source, keyboard.ActionPrevious, "", a.nav.Previous)
}

// First jumps to the first slide.
func (a *App) First(source string) navigation.State {
	return a.navigate(source, keyboard.ActionFirst, "", a.nav.First)
}

// Last jumps to the last slide.
func (a *App) Last(source string) navigation.State {
	return a.navigate(source, keyboard.ActionLast, "", a.nav.Last)
}

// GoTo jumps to slide i. Out-of-range requests leave the index unchanged.
func (a *App) GoTo(source string, i int) navigation.State {
	return a.navigate(source, "goto", "", func() navigation.State { return a.nav.GoTo(i) })
}

// Navigation returns the current navigation state.
func (a *App) Navigation() navigation.State {
	return a.nav.State()
}

func (a *App) handleGesture(g gesture.Gesture) {
	action := keyboard.ActionNext
	label := FeedbackNext
	if g == gesture.SwipeLeft {
		action = keyboard.ActionPrevious
		label = FeedbackBack
	}

	a.mu.Lock()
	a.feedback = label
	a.feedbackAt = a.now()
	a.mu.Unlock()

	a.navigate(SourceGesture, action, g, func() navigation.State { return a.nav.HandleGesture(g) })
}

func (a *App) navigate(source string, action keyboard.Action, g gesture.Gesture, step func() navigation.State) navigation.State {
	a.navMu.Lock()
	before := a.nav.State()
	after := step()
	if after.CurrentSlide != before.CurrentSlide {
		a.record(source, string(action), g, before, after)
	}
	a.navMu.Unlock()

	if after.CurrentSlide != before.CurrentSlide {
		logging.Debug("slide changed", "source", source, "from", before.CurrentSlide, "to", after.CurrentSlide)
		if a.metrics != nil {
			a.metrics.Navigations.WithLabelValues(source).Inc()
			a.metrics.CurrentSlide.Set(float64(after.CurrentSlide))
		}
		if a.plugins != nil && action != "goto" {
			a.plugins.Dispatch(plugin.Navigation{
				Action:  string(action),
				Source:  source,
				Gesture: string(g),
				From:    before.CurrentSlide,
				To:      after.CurrentSlide,
				Total:   after.TotalSlides,
			})
		}
	}
	a.notify()
	return after
}

func (a *App) record(source, action string, g gesture.Gesture, before, after navigation.State) {
	id := a.SessionID()
	if a.store == nil || id == "" {
		return
	}
	err := a.store.Events().Record(&store.Event{
		SessionID: id,
		Source:    source,
		Action:    action,
		Gesture:   string(g),
		FromSlide: before.CurrentSlide,
		ToSlide:   after.CurrentSlide,
	})
	if err != nil {
		logging.Warn("failed to record navigation", "err", err)
	}
}

func (a *App) notify() {
	a.mu.Lock()
	fns := append(([]func())(nil), a.listeners...)
	a.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (a *App) exit() {
	a.mu.Lock()
	fns := append(([]func())(nil), a.exitFns...)
	a.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
