// Package deck splits presentation text into slides and supplies the live
// slide count to the navigator.
package deck

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
)

// separator is a horizontal rule on its own line.
var separator = regexp.MustCompile(`\r?\n---\r?\n`)

// DemoText is used when no presentation file is available.
const DemoText = `# Welcome to AirDeck

Start writing your presentation here...

---

# Second Slide

Use --- to create new slides

---

# Hands-free

Swipe your right hand to the right for the next slide,
your left hand to the left to go back.`

// Parse splits markdown into trimmed, non-empty slides.
func Parse(text string) []string {
	parts := separator.Split(text, -1)
	slides := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			slides = append(slides, p)
		}
	}
	return slides
}

// Deck holds the current presentation text. It is safe for concurrent use and
// may be edited while a session is running.
type Deck struct {
	mu     sync.RWMutex
	text   string
	slides []string
}

// New creates a Deck from text.
func New(text string) *Deck {
	d := &Deck{}
	d.SetText(text)
	return d
}

// Load reads a deck from path. An empty path yields the demo deck.
func Load(path string) (*Deck, error) {
	if path == "" {
		return New(DemoText), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deck: %w", err)
	}
	return New(string(data)), nil
}

// SetText replaces the presentation text.
func (d *Deck) SetText(text string) {
	slides := Parse(text)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
	d.slides = slides
}

// Text returns the raw presentation text.
func (d *Deck) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// Slides returns a copy of the slides.
func (d *Deck) Slides() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.slides))
	copy(out, d.slides)
	return out
}

// Slide returns slide i, or "" when i is out of range.
func (d *Deck) Slide(i int) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i < 0 || i >= len(d.slides) {
		return ""
	}
	return d.slides[i]
}

// SlideCount returns the number of slides.
func (d *Deck) SlideCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.slides)
}
