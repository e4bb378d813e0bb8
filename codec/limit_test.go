package codec

import (
	"strings"
	"testing"
)

func TestLimitCapsDecode(t *testing.T) {
	c := Limit[string]{Inner: String{}, MaxDecode: 8}

	b, err := c.Encode("under")
	if err != nil {
		t.Fatal(err)
	}
	if v, err := c.Decode(b); err != nil || v != "under" {
		t.Fatalf("Decode = %q/%v", v, err)
	}

	big := []byte(strings.Repeat("x", 9))
	if _, err := c.Decode(big); err == nil {
		t.Fatal("oversized payload decoded")
	}

	// Encode is never capped
	if _, err := c.Encode(strings.Repeat("x", 100)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
}

func TestLimitZeroDisablesCap(t *testing.T) {
	c := Limit[string]{Inner: String{}}
	if v, err := c.Decode([]byte(strings.Repeat("x", 1<<16))); err != nil || len(v) != 1<<16 {
		t.Fatalf("Decode = len %d/%v", len(v), err)
	}
}
