package yamlutil

import (
	"errors"
	"strings"
	"testing"
)

type doc struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

func TestUnmarshal(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		var d doc
		if err := Unmarshal([]byte("name: x\ncount: 3\n"), &d); err != nil {
			t.Fatalf("Unmarshal() = %v", err)
		}
		if d.Name != "x" || d.Count != 3 {
			t.Errorf("got %+v, want {x 3}", d)
		}
	})

	t.Run("empty data", func(t *testing.T) {
		t.Parallel()

		var d doc
		if err := Unmarshal(nil, &d); !errors.Is(err, ErrEmptyDocument) {
			t.Errorf("error = %v, want ErrEmptyDocument", err)
		}
	})

	t.Run("nil target", func(t *testing.T) {
		t.Parallel()

		if err := Unmarshal([]byte("a: 1"), nil); !errors.Is(err, ErrNilTarget) {
			t.Errorf("error = %v, want ErrNilTarget", err)
		}
	})

	t.Run("oversized input", func(t *testing.T) {
		t.Parallel()

		var d doc
		big := []byte("name: " + strings.Repeat("a", MaxDocumentBytes))
		if err := Unmarshal(big, &d); !errors.Is(err, ErrOversizeDocument) {
			t.Errorf("error = %v, want ErrOversizeDocument", err)
		}
	})
}

func TestUnmarshalStrict(t *testing.T) {
	t.Parallel()

	var d doc
	err := UnmarshalStrict([]byte("name: x\nextra: field\n"), &d)
	if err == nil {
		t.Error("UnmarshalStrict() accepted an unknown field")
	}

	var d2 doc
	if err := UnmarshalStrict([]byte("name: y\n"), &d2); err != nil {
		t.Errorf("UnmarshalStrict() = %v on valid input", err)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	in := doc{Name: "repo", Count: 7}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() = %v", err)
	}

	var out doc
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() = %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}
