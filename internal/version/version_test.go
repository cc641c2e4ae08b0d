package version

import (
	"testing"

	"github.com/fatih/color"
)

func TestFingerprint(t *testing.T) {
	origVersion, origCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = origVersion, origCommit })

	tests := []struct {
		version, commit, want string
	}{
		{"1.2.3", "", "1.2.3"},
		{"1.2.3", "abc123", "1.2.3@abc123"},
		{"  ", "", "dev"},
		{"0.1.0-dev", " def456 ", "0.1.0-dev@def456"},
	}
	for _, tt := range tests {
		Version, GitCommit = tt.version, tt.commit
		if got := Fingerprint(); got != tt.want {
			t.Errorf("Fingerprint(%q, %q) = %q, want %q", tt.version, tt.commit, got, tt.want)
		}
	}
}

func TestColoredKeepsText(t *testing.T) {
	orig, noColor := Version, color.NoColor
	t.Cleanup(func() { Version, color.NoColor = orig, noColor })
	color.NoColor = true

	for _, v := range []string{"0.1.0-dev", "1.2.3", "1.0.0-beta.1+build.7", "nightly"} {
		Version = v
		if got := Colored(); got != v {
			t.Errorf("Colored() = %q, want %q", got, v)
		}
	}
}
