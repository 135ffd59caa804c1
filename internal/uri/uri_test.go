package uri

import "testing"

func TestNormalize_TrailingSlash(t *testing.T) {
	a := Normalize("https://a.com/cb/")
	b := Normalize("https://a.com/cb")
	if a != b {
		t.Fatalf("expected equal normalization, got %q vs %q", a, b)
	}
}

func TestNormalize_HostCaseInsensitive(t *testing.T) {
	a := Normalize("https://RP.Test/cb")
	b := Normalize("https://rp.test/cb")
	if a != b {
		t.Fatalf("expected equal normalization, got %q vs %q", a, b)
	}
}

func TestEqual_MismatchPath(t *testing.T) {
	if Equal("https://rp.test/cb", "https://rp.test/cb2") {
		t.Fatalf("expected cb != cb2")
	}
}

func TestEqual_PreservesQueryAndFragment(t *testing.T) {
	if !Equal("https://rp.test/cb?x=1#frag", "https://rp.test/cb?x=1#frag") {
		t.Fatalf("expected identical query/fragment URIs to be equal")
	}
	if Equal("https://rp.test/cb?x=1", "https://rp.test/cb?x=2") {
		t.Fatalf("expected differing query to be unequal")
	}
}
