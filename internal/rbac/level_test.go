package rbac

import "testing"

func TestAccessLevelOrdering(t *testing.T) {
	if !LevelFull.AtLeast(LevelEdit) || !LevelEdit.AtLeast(LevelView) || !LevelView.AtLeast(LevelNone) {
		t.Fatal("levels must be ordered none < view < edit < full")
	}
	if LevelView.AtLeast(LevelEdit) {
		t.Fatal("view must not satisfy edit")
	}
	if !LevelNone.AtLeast(LevelNone) {
		t.Fatal("a level must satisfy itself")
	}
}

func TestMinLevel(t *testing.T) {
	if got := MinLevel(LevelEdit, LevelView); got != LevelView {
		t.Fatalf("expected view, got %s", got)
	}
	if got := MinLevel(LevelView, LevelFull); got != LevelView {
		t.Fatalf("expected view, got %s", got)
	}
	if got := MinLevel(LevelNone, LevelFull); got != LevelNone {
		t.Fatalf("expected none, got %s", got)
	}
}

func TestParseAccessLevel(t *testing.T) {
	for name, want := range map[string]AccessLevel{
		"none": LevelNone,
		"view": LevelView,
		"edit": LevelEdit,
		"full": LevelFull,
	} {
		got, err := ParseAccessLevel(name)
		if err != nil {
			t.Fatalf("parse %q: %v", name, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s, got %s", name, want, got)
		}
	}
	if _, err := ParseAccessLevel("root"); err == nil {
		t.Fatal("expected error for unknown level name")
	}
}

func TestParseScope(t *testing.T) {
	for _, scope := range AllScopes() {
		got, err := ParseScope(scope.String())
		if err != nil {
			t.Fatalf("parse %q: %v", scope.String(), err)
		}
		if got != scope {
			t.Fatalf("parse %q: expected %d, got %d", scope.String(), scope, got)
		}
	}
	if _, err := ParseScope("payroll"); err == nil {
		t.Fatal("expected error for unknown scope name")
	}
}
