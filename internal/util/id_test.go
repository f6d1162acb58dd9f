package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("drf")
	if !strings.HasPrefix(id, "drf_") || len(id) != len("drf_")+32 {
		t.Fatalf("unexpected id %q", id)
	}
	if NewID("") == NewID("") {
		t.Fatal("expected distinct ids")
	}
	if strings.Contains(NewID(""), "_") {
		t.Fatal("unprefixed id must not contain a separator")
	}
}
