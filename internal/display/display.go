// Package display holds what the screen currently shows. The timer writes
// into it from the main loop; the web API reads copies.
package display

import "sync"

const (
	DefaultBrightness uint8 = 128
	MinBrightness     uint8 = 10
)

// View is a copy of the presentation state.
type View struct {
	EventText  string `json:"event_text"`
	TimeText   string `json:"time_text"`
	Progress   int    `json:"progress"`
	Background string `json:"background,omitempty"`
	Brightness uint8  `json:"brightness"`
}

type State struct {
	mu sync.RWMutex
	v  View
}

func New() *State {
	return &State{v: View{Brightness: DefaultBrightness}}
}

func (s *State) SetEventText(text string) {
	s.mu.Lock()
	s.v.EventText = text
	s.mu.Unlock()
}

func (s *State) SetTimeText(text string) {
	s.mu.Lock()
	s.v.TimeText = text
	s.mu.Unlock()
}

// SetProgress clamps percent to 0..100.
func (s *State) SetProgress(percent int) {
	percent = max(0, min(100, percent))
	s.mu.Lock()
	s.v.Progress = percent
	s.mu.Unlock()
}

func (s *State) SetBackground(path string) {
	s.mu.Lock()
	s.v.Background = path
	s.mu.Unlock()
}

// ClampBrightness raises values below MinBrightness so the panel never goes
// fully dark.
func ClampBrightness(b uint8) uint8 {
	if b < MinBrightness {
		return MinBrightness
	}
	return b
}

// SetBrightness stores the clamped value and returns it.
func (s *State) SetBrightness(b uint8) uint8 {
	b = ClampBrightness(b)
	s.mu.Lock()
	s.v.Brightness = b
	s.mu.Unlock()
	return b
}

func (s *State) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}
