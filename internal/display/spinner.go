package display

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hako/durafmt"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a status line while a long operation runs. It is inert when colors are
// disabled, so redirected output never receives carriage returns.
type Spinner struct {
	writer  io.Writer
	colors  *ColorSystem
	message string
	delay   time.Duration
	started time.Time

	mu     sync.Mutex
	active bool
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSpinner creates a spinner writing to w
func NewSpinner(w io.Writer, colors *ColorSystem, message string) *Spinner {
	return &Spinner{
		writer:  w,
		colors:  colors,
		message: message,
		delay:   80 * time.Millisecond,
	}
}

// Start begins the animation
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = time.Now()
	if s.active || s.colors == nil || !s.colors.Enabled() {
		return
	}
	s.active = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.animate()
}

// Active reports whether the animation is running
func (s *Spinner) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Stop ends the animation and clears the line; it returns the elapsed time
func (s *Spinner) Stop() time.Duration {
	s.mu.Lock()
	elapsed := time.Since(s.started)
	if !s.active {
		s.mu.Unlock()
		return elapsed
	}
	s.active = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh
	fmt.Fprint(s.writer, "\r\033[K")
	return elapsed
}

func (s *Spinner) animate() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.delay)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			elapsed := durafmt.Parse(time.Since(s.started).Truncate(time.Second)).LimitFirstN(2).String()
			glyph := s.colors.Colorize(spinnerFrames[frame%len(spinnerFrames)], s.colors.Theme().Primary)
			fmt.Fprintf(s.writer, "\r\033[K%s %s (%s)", glyph, s.message, elapsed)
		}
	}
}
