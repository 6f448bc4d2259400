package types

import "testing"

func TestBrowserIDFromTargetID(t *testing.T) {
	if got := BrowserIDFromTargetID("B0D5A8E8FFFF"); got != "B0D5A8E8" {
		t.Fatalf("BrowserIDFromTargetID() = %q; want %q", got, "B0D5A8E8")
	}
	if got := BrowserIDFromTargetID("abc"); got != "abc" {
		t.Fatalf("BrowserIDFromTargetID() = %q; want %q", got, "abc")
	}
}
