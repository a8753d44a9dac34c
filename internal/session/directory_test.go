package session

import (
	"strings"
	"testing"
)

func TestRegisterAndResolve(t *testing.T) {
	d := NewDirectory()

	id, err := d.Register("  Alice  ")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if id == "" {
		t.Fatal("empty session id")
	}

	name, ok := d.NameFor(id)
	if !ok || name != "Alice" {
		t.Fatalf("NameFor = %q, %v", name, ok)
	}
	if d.Len() != 1 {
		t.Fatalf("len = %d, want 1", d.Len())
	}
}

func TestRegisterMintsUniqueIDs(t *testing.T) {
	d := NewDirectory()
	a, _ := d.Register("Alice")
	b, _ := d.Register("Alice")
	if a == b {
		t.Fatal("two registrations shared a session id")
	}
}

func TestRegisterRejectsBadNames(t *testing.T) {
	d := NewDirectory()

	if _, err := d.Register(""); err == nil {
		t.Fatal("empty name accepted")
	}
	if _, err := d.Register("   "); err == nil {
		t.Fatal("whitespace name accepted")
	}
	if _, err := d.Register(strings.Repeat("x", MaxNameLength+1)); err == nil {
		t.Fatal("oversized name accepted")
	}
	if _, err := d.Register(strings.Repeat("x", MaxNameLength)); err != nil {
		t.Fatalf("max-length name rejected: %v", err)
	}
}

func TestRename(t *testing.T) {
	d := NewDirectory()
	id, _ := d.Register("Alice")

	ok, err := d.Rename(id, "Alicia")
	if err != nil || !ok {
		t.Fatalf("rename: %v, %v", ok, err)
	}
	if name, _ := d.NameFor(id); name != "Alicia" {
		t.Fatalf("name = %q", name)
	}

	if ok, err := d.Rename("unknown", "Bob"); err != nil || ok {
		t.Fatalf("rename of unknown session = %v, %v", ok, err)
	}
	if _, err := d.Rename(id, ""); err == nil {
		t.Fatal("empty rename accepted")
	}
}

func TestUnknownSession(t *testing.T) {
	d := NewDirectory()
	if _, ok := d.NameFor("nope"); ok {
		t.Fatal("unknown session resolved")
	}
}
