// Package keyboard models the extension's text input surface. It reads
// feature flags and the full access capability on every relevant event and
// keeps working, with fewer features, when full access is missing.
package keyboard

import (
	"strings"
	"unicode"

	"github.com/wilbur182/keyhost/internal/capability"
	"github.com/wilbur182/keyhost/internal/features"
)

// FullAccessMessage is shown instead of the full analysis when the user has
// not granted full access.
const FullAccessMessage = "Allow Full Access in Settings to turn on text analysis. What you type stays on this device."

// Mode says how much analysis was possible.
type Mode int

const (
	ModeDisabled Mode = iota // analyse_text is off
	ModeDegraded             // analyse_text is on, full access is not granted
	ModeFull
)

func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "disabled"
	case ModeDegraded:
		return "degraded"
	case ModeFull:
		return "full"
	default:
		return "unknown"
	}
}

// Analysis is the result of Session.Analyse.
type Analysis struct {
	Mode      Mode
	Words     int
	Sentences int      // full mode only
	Repeated  []string // doubled words, full mode only
	Message   string   // set in degraded mode
}

// corrections is the autocorrect dictionary.
var corrections = map[string]string{
	"teh":      "the",
	"adn":      "and",
	"recieve":  "receive",
	"wich":     "which",
	"becuase":  "because",
	"seperate": "separate",
}

// Session is one text field's worth of keyboard input.
type Session struct {
	flags   *features.Flags
	access  capability.Checker
	text    []rune
	haptics int
}

// NewSession never fails: a keyboard without full access still types.
func NewSession(flags *features.Flags, access capability.Checker) *Session {
	return &Session{flags: flags, access: access}
}

// Insert types text one rune at a time.
func (s *Session) Insert(text string) {
	for _, r := range text {
		if unicode.IsSpace(r) && s.flags.AutocorrectEnabled() {
			s.correctLastWord()
		}
		s.text = append(s.text, r)
		if s.flags.HapticFeedbackEnabled() {
			s.haptics++
		}
	}
}

// DeleteBackward removes the last rune, if any.
func (s *Session) DeleteBackward() {
	if len(s.text) > 0 {
		s.text = s.text[:len(s.text)-1]
	}
}

// Text returns the current contents.
func (s *Session) Text() string {
	return string(s.text)
}

// Haptics returns how many key presses produced haptic feedback.
func (s *Session) Haptics() int {
	return s.haptics
}

// Analyse reports on the typed text. With analyse_text on but no full
// access it returns the word count only, plus FullAccessMessage.
func (s *Session) Analyse() Analysis {
	text := s.Text()
	words := strings.Fields(text)

	if !s.flags.AnalyseTextEnabled() {
		return Analysis{Mode: ModeDisabled, Words: len(words)}
	}
	if !s.access.HasFullAccess() {
		return Analysis{Mode: ModeDegraded, Words: len(words), Message: FullAccessMessage}
	}

	return Analysis{
		Mode:      ModeFull,
		Words:     len(words),
		Sentences: countSentences(text),
		Repeated:  repeatedWords(words),
	}
}

// correctLastWord replaces the word before the cursor if it is a known typo.
func (s *Session) correctLastWord() {
	end := len(s.text)
	start := end
	for start > 0 && unicode.IsLetter(s.text[start-1]) {
		start--
	}
	if start == end {
		return
	}

	word := string(s.text[start:end])
	fixed, ok := corrections[strings.ToLower(word)]
	if !ok {
		return
	}
	if unicode.IsUpper([]rune(word)[0]) {
		r := []rune(fixed)
		r[0] = unicode.ToUpper(r[0])
		fixed = string(r)
	}
	s.text = append(s.text[:start], []rune(fixed)...)
}

func countSentences(text string) int {
	n := 0
	pending := false
	for _, r := range text {
		switch {
		case r == '.' || r == '!' || r == '?':
			if pending {
				n++
				pending = false
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			pending = true
		}
	}
	if pending {
		n++
	}
	return n
}

func repeatedWords(words []string) []string {
	var out []string
	prev := ""
	for _, w := range words {
		norm := strings.ToLower(strings.TrimFunc(w, unicode.IsPunct))
		if norm != "" && norm == prev {
			out = append(out, norm)
		}
		prev = norm
	}
	return out
}
