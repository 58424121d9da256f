package types

import (
	"encoding/json"
	"math"
	"testing"
)

func TestNumberUnmarshal(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{`3`, 3},
		{`"3.5"`, 3.5},
		{`""`, 0},
		{`null`, 0},
		{`" 12 "`, 12},
	}
	for _, tc := range cases {
		var n Number
		if err := json.Unmarshal([]byte(tc.in), &n); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.in, err)
		}
		if n.Float() != tc.want {
			t.Errorf("unmarshal %s = %v, want %v", tc.in, n.Float(), tc.want)
		}
	}
}

func TestNumberRejectsText(t *testing.T) {
	var n Number
	if err := json.Unmarshal([]byte(`"abc"`), &n); err == nil {
		t.Fatal("expected error for non-numeric string")
	}
}

func TestNumberFloatNaN(t *testing.T) {
	if got := Number(math.NaN()).Float(); got != 0 {
		t.Errorf("NaN.Float() = %v, want 0", got)
	}
}
