// Package ui provides the Bubble Tea terminal presenter view.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ayusman/airdeck/internal/app"
	"github.com/ayusman/airdeck/internal/keyboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// feedbackTick re-renders often enough for the gesture flash to clear on time.
const feedbackTick = 200 * time.Millisecond

// Session is the part of *app.App the view drives.
type Session interface {
	Snapshot() app.Snapshot
	HandleKey(key string) keyboard.Action
	ToggleGestures(ctx context.Context) (bool, error)
}

// SnapshotMsg carries a fresh session snapshot.
type SnapshotMsg struct {
	Snapshot app.Snapshot
}

// ToggledMsg reports the result of a gesture toggle.
type ToggledMsg struct {
	On  bool
	Err error
}

type tickMsg time.Time

// Model is the presenter view.
type Model struct {
	session  Session
	snap     app.Snapshot
	width    int
	height   int
	toggling bool
	quitting bool
}

// New creates a Model over s.
func New(s Session) Model {
	return Model{session: s, snap: s.Snapshot()}
}

// Init starts the refresh tick.
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(feedbackTick, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case SnapshotMsg:
		m.snap = msg.Snapshot

	case ToggledMsg:
		m.toggling = false
		m.snap = m.session.Snapshot()

	case tickMsg:
		m.snap = m.session.Snapshot()
		return m, tick()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit
	case "g":
		if m.toggling {
			return m, nil
		}
		m.toggling = true
		return m, m.toggle()
	}

	action := m.session.HandleKey(keyboard.Normalize(msg.String()))
	if action == keyboard.ActionExit {
		m.quitting = true
		return m, tea.Quit
	}
	m.snap = m.session.Snapshot()
	return m, nil
}

// toggle runs off the update loop since starting may wait for the model.
func (m Model) toggle() tea.Cmd {
	s := m.session
	return func() tea.Msg {
		on, err := s.ToggleGestures(context.Background())
		return ToggledMsg{On: on, Err: err}
	}
}

// View renders the presenter screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, m.badge(), m.counter(), m.feedback()))
	b.WriteString("\n")

	if errMsg := m.snap.Detection.Error; errMsg != "" {
		b.WriteString(ErrorStyle.Render(errMsg))
		b.WriteString("\n")
	}

	box := SlideBox
	if m.width > 4 {
		box = box.Width(m.width - 4)
	}
	slide := m.snap.Slide
	if slide == "" {
		slide = "(empty deck)"
	}
	b.WriteString(box.Render(slide))
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("←/→ navigate · home/end jump · g gestures · q quit"))
	return b.String()
}

func (m Model) badge() string {
	det := m.snap.Detection
	switch {
	case m.toggling || det.Loading:
		return LoadingBadge.Render("Loading model…")
	case det.Active:
		return ActiveBadge.Render("AI Active")
	default:
		return InactiveBadge.Render("AI Inactive")
	}
}

func (m Model) counter() string {
	nav := m.snap.Navigation
	if nav.TotalSlides == 0 {
		return SlideCounter.Render("0 / 0")
	}
	return SlideCounter.Render(fmt.Sprintf("%d / %d", nav.CurrentSlide+1, nav.TotalSlides))
}

func (m Model) feedback() string {
	switch m.snap.Feedback {
	case app.FeedbackNext:
		return FeedbackStyle.Render("→ " + app.FeedbackNext)
	case app.FeedbackBack:
		return FeedbackStyle.Render("← " + app.FeedbackBack)
	default:
		return ""
	}
}

// Run shows the presenter view for a until the user quits.
func Run(a *app.App) error {
	p := tea.NewProgram(New(a), tea.WithAltScreen())
	a.OnChange(func() { p.Send(SnapshotMsg{Snapshot: a.Snapshot()}) })
	a.OnExit(p.Quit)
	_, err := p.Run()
	return err
}
