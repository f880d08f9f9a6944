package version

import "testing"

func TestFullIncludesVersionAndCommit(t *testing.T) {
	oldVersion, oldCommit := Version, Commit
	defer func() { Version, Commit = oldVersion, oldCommit }()

	Version, Commit = "1.2.3", "abc123"
	if got := Full(); got != "offline-hub 1.2.3 (abc123)" {
		t.Fatalf("unexpected version string %q", got)
	}
}
