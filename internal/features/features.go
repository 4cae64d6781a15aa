package features

import (
	"log/slog"
	"strings"

	"github.com/wilbur182/keyhost/internal/sharedstore"
)

// Namespace prefixes every flag's key in the shared store.
const Namespace = "feature_flags"

// Key names one boolean flag.
type Key string

// Feature represents a known feature flag with its default value.
type Feature struct {
	Key         Key
	Default     bool
	Description string
}

// Known feature flags - add new features here.
var (
	// AnalyseText analyses typed text to offer suggestions. Needs full access
	// for the complete analysis; see keyboard.Session.
	AnalyseText = Feature{
		Key:         "analyse_text",
		Default:     false,
		Description: "Analyse typed text to offer suggestions",
	}

	// HapticFeedback vibrates on key press.
	HapticFeedback = Feature{
		Key:         "haptic_feedback",
		Default:     true,
		Description: "Vibrate on key press",
	}

	// Autocorrect replaces misspelt words when space is typed.
	Autocorrect = Feature{
		Key:         "autocorrect",
		Default:     true,
		Description: "Replace misspelt words on space",
	}
)

// allFeatures is the registry of all known features.
var allFeatures = []Feature{
	AnalyseText,
	HapticFeedback,
	Autocorrect,
}

// defaultValues provides O(1) lookup for feature defaults.
var defaultValues = buildDefaultMap()

func buildDefaultMap() map[Key]bool {
	m := make(map[Key]bool, len(allFeatures))
	for _, f := range allFeatures {
		m[f.Key] = f.Default
	}
	return m
}

// IsKnown returns true if the key is registered.
func IsKnown(key Key) bool {
	_, ok := defaultValues[key]
	return ok
}

// Lookup returns the registered feature for key.
func Lookup(key Key) (Feature, bool) {
	for _, f := range allFeatures {
		if f.Key == key {
			return f, true
		}
	}
	return Feature{}, false
}

// Default returns the compiled-in default for key, ignoring persisted state.
func Default(key Key) bool {
	if val, ok := defaultValues[key]; ok {
		return val
	}
	return false // Unknown features default to disabled
}

// ListAll returns all known features with metadata.
// Returns a copy to prevent mutation of internal state.
func ListAll() []Feature {
	result := make([]Feature, len(allFeatures))
	copy(result, allFeatures)
	return result
}

// StoreKey returns the namespaced shared store key for a flag.
func StoreKey(key Key) string {
	return Namespace + "." + string(key)
}

// Flags reads and writes feature flags. It holds no flag state of its own:
// every call goes to the shared store, so any two Flags over the same
// container agree without coordinating.
type Flags struct {
	store  sharedstore.Store
	logger *slog.Logger
}

// New returns a Flags backed by store.
func New(store sharedstore.Store, logger *slog.Logger) *Flags {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flags{store: store, logger: logger}
}

// IsEnabled returns the persisted value, falling back to the default when no
// record exists. Unknown keys resolve to false.
func (f *Flags) IsEnabled(key Key) bool {
	if v, ok := f.store.LookupBool(StoreKey(key)); ok {
		return v
	}
	return Default(key)
}

// SetEnabled writes the flag through to the shared store.
func (f *Flags) SetEnabled(key Key, enabled bool) {
	if !IsKnown(key) {
		f.logger.Debug("features: writing unknown flag", "key", key)
	}
	f.store.SetBool(StoreKey(key), enabled)
}

// Default returns the compiled-in default for key.
func (f *Flags) Default(key Key) bool {
	return Default(key)
}

// ResetToDefaults overwrites every known flag with its default in a single
// store commit, so no reader sees a half-reset set of flags.
func (f *Flags) ResetToDefaults() {
	values := make(map[string]bool, len(allFeatures))
	for _, feat := range allFeatures {
		values[StoreKey(feat.Key)] = feat.Default
	}
	f.store.SetBools(values)
}

// List returns all known features with their current enabled state.
func (f *Flags) List() map[Key]bool {
	result := make(map[Key]bool, len(allFeatures))
	for _, feat := range allFeatures {
		result[feat.Key] = f.IsEnabled(feat.Key)
	}
	return result
}

// LogCurrentState logs every known flag's current value, plus any records in
// the flag namespace that no registered flag owns (left behind by a newer or
// older build). It only reads and never panics.
func (f *Flags) LogCurrentState() {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Warn("features: state logging failed", "panic", r)
		}
	}()

	attrs := make([]any, 0, 2*len(allFeatures)+2)
	for _, feat := range allFeatures {
		attrs = append(attrs, string(feat.Key), f.IsEnabled(feat.Key))
	}
	if unknown := f.unknownRecords(); len(unknown) > 0 {
		attrs = append(attrs, "unknown", strings.Join(unknown, ","))
	}
	f.logger.Info("feature flags", attrs...)
}

// unknownRecords returns flag-namespace keys with no registered flag.
func (f *Flags) unknownRecords() []string {
	prefix := Namespace + "."
	var unknown []string
	for _, k := range f.store.Keys() {
		name, ok := strings.CutPrefix(k, prefix)
		if ok && !IsKnown(Key(name)) {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// AnalyseTextEnabled reports whether typed text is analysed.
func (f *Flags) AnalyseTextEnabled() bool { return f.IsEnabled(AnalyseText.Key) }

// SetAnalyseTextEnabled toggles text analysis.
func (f *Flags) SetAnalyseTextEnabled(enabled bool) { f.SetEnabled(AnalyseText.Key, enabled) }

// HapticFeedbackEnabled reports whether key presses vibrate.
func (f *Flags) HapticFeedbackEnabled() bool { return f.IsEnabled(HapticFeedback.Key) }

// SetHapticFeedbackEnabled toggles haptic feedback.
func (f *Flags) SetHapticFeedbackEnabled(enabled bool) { f.SetEnabled(HapticFeedback.Key, enabled) }

// AutocorrectEnabled reports whether autocorrect runs on space.
func (f *Flags) AutocorrectEnabled() bool { return f.IsEnabled(Autocorrect.Key) }

// SetAutocorrectEnabled toggles autocorrect.
func (f *Flags) SetAutocorrectEnabled(enabled bool) { f.SetEnabled(Autocorrect.Key, enabled) }
