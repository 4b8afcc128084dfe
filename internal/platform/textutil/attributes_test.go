package textutil

import "testing"

func TestFold(t *testing.T) {
	cases := map[string]string{
		"  Navy Blue ": "navy blue",
		"RED":          "red",
		"":             "",
		"  ":           "",
	}
	for input, expected := range cases {
		if got := Fold(input); got != expected {
			t.Fatalf("Fold(%q) = %q, expected %q", input, got, expected)
		}
	}
}

func TestFoldEqual(t *testing.T) {
	if !FoldEqual(" Red ", "red") {
		t.Fatalf("expected trimmed case-insensitive match")
	}
	if FoldEqual("red", "blue") {
		t.Fatalf("expected mismatch")
	}
	if !FoldEqual("  ", "") {
		t.Fatalf("expected empty values to match after folding")
	}
	// Full case folding covers pairs ToLower cannot, like Kelvin K.
	if !FoldEqual("Khaki", "khaki") {
		t.Fatalf("expected Kelvin sign to fold to k")
	}
	if !FoldEqual("GRÖSSE", "größe") {
		t.Fatalf("expected non-ASCII case-insensitive match")
	}
}

func TestFoldContains(t *testing.T) {
	if !FoldContains("Navy Blue", "blue") {
		t.Fatalf("expected substring match")
	}
	if !FoldContains("blue", "Navy Blue") {
		t.Fatalf("expected substring match in either direction")
	}
	if FoldContains("", "blue") {
		t.Fatalf("empty value must not match")
	}
	if FoldContains("red", "blue") {
		t.Fatalf("expected no match")
	}
}
