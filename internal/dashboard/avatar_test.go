package dashboard

import (
	"strings"
	"testing"
)

func TestAreaAvatar_Deterministic(t *testing.T) {
	a1 := string(areaAvatar("Access Control", 20))
	a2 := string(areaAvatar("access control", 20))
	if a1 != a2 {
		t.Errorf("same area produced different avatars:\n  %s\n  %s", a1, a2)
	}
	if !strings.Contains(a1, ">AC<") {
		t.Errorf("avatar should carry initials: %s", a1)
	}
}

func TestAreaAvatar_Empty(t *testing.T) {
	if areaAvatar("  ", 20) != "" {
		t.Error("blank area should render nothing")
	}
	if areaCell("") != "" {
		t.Error("blank area cell should render nothing")
	}
}

func TestAreaCell_EscapesName(t *testing.T) {
	cell := string(areaCell("<script>"))
	if strings.Contains(cell, "<script>") {
		t.Errorf("area name not escaped: %s", cell)
	}
}

func TestInitials(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Network Security", "NS"},
		{"encryption", "E"},
		{"Incident-Response Planning Team", "IR"},
		{"---", "?"},
	}
	for _, tt := range tests {
		if got := initials(tt.in); got != tt.want {
			t.Errorf("initials(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFNV32a_KnownValue(t *testing.T) {
	// Offset basis for the empty string.
	if got := fnv32a(""); got != 2166136261 {
		t.Errorf("fnv32a(\"\") = %d", got)
	}
}
