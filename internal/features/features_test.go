package features

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wilbur182/keyhost/internal/sharedstore"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openContainer returns a store over a fresh temp container, standing in
// for a fresh install.
func openContainer(t *testing.T, dir string) sharedstore.Store {
	t.Helper()
	s, err := sharedstore.NewFileStore(dir, sharedstore.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return s
}

func setupFlags(t *testing.T) *Flags {
	t.Helper()
	return New(openContainer(t, t.TempDir()), quietLogger())
}

func TestIsEnabled_DefaultValue(t *testing.T) {
	f := setupFlags(t)
	for _, feat := range ListAll() {
		if got := f.IsEnabled(feat.Key); got != feat.Default {
			t.Errorf("IsEnabled(%s) = %v on fresh store, want default %v", feat.Key, got, feat.Default)
		}
	}
}

func TestAnalyseTextEnabled_FreshProcess(t *testing.T) {
	f := setupFlags(t)
	if f.AnalyseTextEnabled() {
		t.Error("analyse_text should be disabled on a fresh store")
	}
}

func TestIsEnabled_UnknownFeature(t *testing.T) {
	f := setupFlags(t)
	if f.IsEnabled("unknown_feature") {
		t.Error("unknown features should default to false")
	}
	if f.Default("unknown_feature") {
		t.Error("unknown features should have a false default")
	}
}

func TestSetEnabled_UnknownFeatureIsStillReadable(t *testing.T) {
	f := setupFlags(t)
	f.SetEnabled("experimental_layout", true)
	if !f.IsEnabled("experimental_layout") {
		t.Error("a written unknown key should read back its value")
	}
}

func TestSetThenGet(t *testing.T) {
	for _, feat := range ListAll() {
		for _, v := range []bool{true, false} {
			f := setupFlags(t)
			f.SetEnabled(feat.Key, v)
			if got := f.IsEnabled(feat.Key); got != v {
				t.Errorf("IsEnabled(%s) = %v after SetEnabled(%v)", feat.Key, got, v)
			}
		}
	}
}

func TestSecondHandleObservesWrite(t *testing.T) {
	dir := t.TempDir()
	first := New(openContainer(t, dir), quietLogger())
	second := New(openContainer(t, dir), quietLogger())

	first.SetAnalyseTextEnabled(true)
	if !first.AnalyseTextEnabled() {
		t.Error("writer should read its own write")
	}
	if !second.AnalyseTextEnabled() {
		t.Error("an independently obtained handle should read the write")
	}
}

func TestWriteIsDurable(t *testing.T) {
	dir := t.TempDir()
	New(openContainer(t, dir), quietLogger()).SetHapticFeedbackEnabled(false)

	// A new store over the same container stands in for a process restart.
	restarted := New(openContainer(t, dir), quietLogger())
	if restarted.HapticFeedbackEnabled() {
		t.Error("haptic_feedback should stay disabled across restarts")
	}
}

func TestResetToDefaults(t *testing.T) {
	f := setupFlags(t)
	f.SetAnalyseTextEnabled(true)
	f.SetHapticFeedbackEnabled(false)
	f.SetAutocorrectEnabled(false)

	f.ResetToDefaults()

	for _, feat := range ListAll() {
		if got := f.IsEnabled(feat.Key); got != feat.Default {
			t.Errorf("IsEnabled(%s) = %v after reset, want %v", feat.Key, got, feat.Default)
		}
	}
}

func TestClearAllSharedDataRestoresDefaults(t *testing.T) {
	store := openContainer(t, t.TempDir())
	f := New(store, quietLogger())
	f.SetAnalyseTextEnabled(true)
	f.SetAutocorrectEnabled(false)

	store.ClearAllSharedData()

	for _, feat := range ListAll() {
		if got := f.IsEnabled(feat.Key); got != feat.Default {
			t.Errorf("IsEnabled(%s) = %v after clear, want %v", feat.Key, got, feat.Default)
		}
	}
}

func TestDefaultIgnoresPersistedValue(t *testing.T) {
	f := setupFlags(t)
	f.SetAnalyseTextEnabled(true)
	if f.Default(AnalyseText.Key) {
		t.Error("Default() should ignore the persisted override")
	}
	if !f.Default(HapticFeedback.Key) {
		t.Error("haptic_feedback default should be true")
	}
}

func TestStoreKeyUsesNamespace(t *testing.T) {
	store := sharedstore.NewMemoryStore()
	f := New(store, quietLogger())
	f.SetAnalyseTextEnabled(true)

	if !store.GetBool("feature_flags.analyse_text") {
		t.Error("flag should be stored under the feature_flags namespace")
	}
}

func TestLogCurrentState(t *testing.T) {
	var buf bytes.Buffer
	store := openContainer(t, t.TempDir())
	f := New(store, slog.New(slog.NewTextHandler(&buf, nil)))
	f.SetAnalyseTextEnabled(true)

	before := f.List()
	keysBefore := store.Keys()
	f.LogCurrentState()
	after := f.List()

	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("LogCurrentState changed flags (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(keysBefore, store.Keys()); diff != "" {
		t.Errorf("LogCurrentState changed records (-before +after):\n%s", diff)
	}

	out := buf.String()
	for _, want := range []string{"analyse_text=true", "haptic_feedback=true", "autocorrect=true"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}

func TestLogCurrentState_ReportsUnknownRecords(t *testing.T) {
	var buf bytes.Buffer
	store := sharedstore.NewMemoryStore()
	store.SetBool(StoreKey("dark_mode"), true)
	store.SetBool("other_namespace.x", true)
	f := New(store, slog.New(slog.NewTextHandler(&buf, nil)))
	f.SetAutocorrectEnabled(false)

	f.LogCurrentState()

	out := buf.String()
	if !strings.Contains(out, "unknown=dark_mode") {
		t.Errorf("log output %q should name the unregistered flag record", out)
	}
	if strings.Contains(out, "other_namespace") {
		t.Errorf("log output %q should ignore keys outside the flag namespace", out)
	}
}

func TestLookup(t *testing.T) {
	f, ok := Lookup(Autocorrect.Key)
	if !ok || f != Autocorrect {
		t.Errorf("Lookup(autocorrect) = %+v, %v", f, ok)
	}
	if _, ok := Lookup("dark_mode"); ok {
		t.Error("Lookup(dark_mode) should fail")
	}
}

// panicStore fails every read.
type panicStore struct{ sharedstore.Store }

func (panicStore) LookupBool(string) (bool, bool) { panic("medium gone") }

func TestLogCurrentState_NeverPanics(t *testing.T) {
	f := New(panicStore{sharedstore.NewMemoryStore()}, quietLogger())
	f.LogCurrentState()
}

func TestList(t *testing.T) {
	f := setupFlags(t)
	f.SetAutocorrectEnabled(false)

	want := map[Key]bool{
		AnalyseText.Key:    false,
		HapticFeedback.Key: true,
		Autocorrect.Key:    false,
	}
	if diff := cmp.Diff(want, f.List()); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
}

func TestListAll(t *testing.T) {
	all := ListAll()
	if len(all) == 0 {
		t.Fatal("ListAll should return at least one feature")
	}
	for _, f := range all {
		if f.Description == "" {
			t.Errorf("feature %s should have description", f.Key)
		}
	}
}

func TestListAllReturnsCopy(t *testing.T) {
	original := ListAll()
	original[0].Key = "modified"

	fresh := ListAll()
	if fresh[0].Key == "modified" {
		t.Error("ListAll should return a copy, not the original slice")
	}
}

func TestIsKnownAndLookup(t *testing.T) {
	if !IsKnown("analyse_text") {
		t.Error("analyse_text should be a known feature")
	}
	if IsKnown("unknown_feature") {
		t.Error("unknown_feature should not be a known feature")
	}
	feat, ok := Lookup("autocorrect")
	if !ok || feat.Key != Autocorrect.Key {
		t.Errorf("Lookup(autocorrect) = %+v, %v", feat, ok)
	}
	if _, ok := Lookup("nope"); ok {
		t.Error("Lookup(nope) should fail")
	}
}

func TestConcurrentAccess(t *testing.T) {
	dir := t.TempDir()
	a := New(openContainer(t, dir), quietLogger())
	b := New(openContainer(t, dir), quietLogger())

	var wg sync.WaitGroup
	const goroutines = 20

	for i := 0; i < goroutines; i++ {
		wg.Add(3)
		go func(v bool) {
			defer wg.Done()
			a.SetAnalyseTextEnabled(v)
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			_ = b.AnalyseTextEnabled()
		}()
		go func() {
			defer wg.Done()
			a.ResetToDefaults()
		}()
	}
	wg.Wait()

	b.SetAnalyseTextEnabled(true)
	if !a.AnalyseTextEnabled() {
		t.Error("final write should be visible through the other handle")
	}
}
