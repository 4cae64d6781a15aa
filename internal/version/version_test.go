package version

import (
	"runtime/debug"
	"testing"
)

func TestEffective(t *testing.T) {
	tests := []struct {
		name string
		v    string
		info *debug.BuildInfo
		ok   bool
		want string
	}{
		{"ldflags", "v1.2.0", nil, false, "v1.2.0"},
		{"no build info", "", nil, false, "unknown"},
		{"module version", "", &debug.BuildInfo{Main: debug.Module{Version: "v0.3.1"}}, true, "v0.3.1"},
		{"no vcs", "", &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, true, "devel"},
		{
			"vcs dirty", "",
			&debug.BuildInfo{Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123456789abcdef0123"},
				{Key: "vcs.modified", Value: "true"},
			}},
			true, "devel+0123456789abcd+dirty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := effective(tt.v, func() (*debug.BuildInfo, bool) { return tt.info, tt.ok })
			if got != tt.want {
				t.Errorf("effective() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	for v, want := range map[string]bool{"": true, "unknown": true, "devel": true, "devel+abc": true, "v1.0.0": false} {
		if got := IsDevelopment(v); got != want {
			t.Errorf("IsDevelopment(%q) = %v, want %v", v, got, want)
		}
	}
}
