package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()

	if info.Version == "" {
		t.Error("version should not be empty")
	}
	if info.Commit == "" {
		t.Error("commit should not be empty")
	}
	if info.BuildDate == "" {
		t.Error("build date should not be empty")
	}
}

func TestString(t *testing.T) {
	s := Get().String()

	switch {
	case s == "":
		t.Error("String should not return empty string")
	case !strings.Contains(s, Get().Version):
		t.Errorf("String %q should contain version %q", s, Get().Version)
	case !strings.Contains(s, Get().Commit):
		t.Errorf("String %q should contain commit %q", s, Get().Commit)
	default:
		t.Log("build info: ", s)
	}
}
