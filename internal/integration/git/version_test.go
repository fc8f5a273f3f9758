package git

import (
	"context"
	"errors"
	"testing"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{"git version 2.39.2", Version{2, 39, 2}, false},
		{"git version 2.39.2 (Apple Git-143)", Version{2, 39, 2}, false},
		{"git version 2.45.1.windows.1", Version{2, 45, 1}, false},
		{"1.8", Version{1, 8, 0}, false},
		{"not a version", Version{}, true},
	}

	for _, tt := range tests {
		got, err := ParseVersion(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseVersion(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseVersion(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestVersionLess(t *testing.T) {
	tests := []struct {
		a, b Version
		want bool
	}{
		{Version{2, 0, 0}, Version{2, 0, 1}, true},
		{Version{2, 1, 0}, Version{2, 0, 9}, false},
		{Version{1, 99, 99}, Version{2, 0, 0}, true},
		{Version{2, 3, 4}, Version{2, 3, 4}, false},
	}

	for _, tt := range tests {
		if got := tt.a.Less(tt.b); got != tt.want {
			t.Errorf("%v.Less(%v) = %v", tt.a, tt.b, got)
		}
	}
	if (Version{2, 3, 4}).String() != "2.3.4" {
		t.Error("unexpected version string")
	}
}

func TestCheckBackend(t *testing.T) {
	ctx := context.Background()

	if _, err := CheckBackend(ctx, nil, "definitely-not-git-xyz", ""); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}

	requireGit(t)

	v, err := CheckBackend(ctx, nil, "", "1.0")
	if err != nil {
		t.Fatalf("check backend: %v", err)
	}
	if v.Major < 1 {
		t.Errorf("unexpected version %v", v)
	}

	if _, err := CheckBackend(ctx, nil, "git", "99.0"); !errors.Is(err, ErrBackendTooOld) {
		t.Errorf("expected ErrBackendTooOld, got %v", err)
	}
}
