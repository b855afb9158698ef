package results

import "testing"

func TestKindText(t *testing.T) {
	for _, k := range []Kind{Scalar, Text, Embedding} {
		text, err := k.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var decoded Kind
		if err := decoded.UnmarshalText(text); err != nil {
			t.Fatal(err)
		}
		if decoded != k {
			t.Errorf("expected %s but got %s", k, decoded)
		}
	}
	var k Kind
	if err := k.UnmarshalText([]byte("histogram")); err == nil {
		t.Error("expected error for unknown kind")
	}
}
