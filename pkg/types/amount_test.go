package types

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestParseEther(t *testing.T) {
	tests := []struct {
		in      string
		wantWei string
		wantErr bool
	}{
		{"1", "1000000000000000000", false},
		{"0.1", "100000000000000000", false},
		{"0.04", "40000000000000000", false},
		{".001", "1000000000000000", false},
		{"2.5", "2500000000000000000", false},
		{"0", "0", false},
		{"", "", true},
		{"-1", "", true},
		{"abc", "", true},
		{"1.0000000000000000001", "", true}, // 19 decimal places
	}

	for _, tt := range tests {
		a, err := ParseEther(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseEther(%q): expected error, got %s", tt.in, a.Wei())
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseEther(%q): %v", tt.in, err)
			continue
		}
		if a.Wei().String() != tt.wantWei {
			t.Errorf("ParseEther(%q) = %s wei, want %s", tt.in, a.Wei(), tt.wantWei)
		}
	}
}

func TestEtherFormatting(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0.1", "0.1"},
		{"0.04", "0.04"},
		{"1", "1"},
		{"2.500", "2.5"},
		{"0", "0"},
	}
	for _, tt := range tests {
		if got := MustParseEther(tt.in).Ether(); got != tt.want {
			t.Errorf("Ether(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAmountAddCmp(t *testing.T) {
	a := MustParseEther("0.1")
	b := MustParseEther("0.04")

	sum := a.Add(b)
	if sum.Ether() != "0.14" {
		t.Errorf("0.1 + 0.04 = %s, want 0.14", sum.Ether())
	}
	if a.Cmp(b) != 1 || b.Cmp(a) != -1 || a.Cmp(a) != 0 {
		t.Errorf("Cmp ordering wrong: a.Cmp(b)=%d b.Cmp(a)=%d", a.Cmp(b), b.Cmp(a))
	}

	// Add must not mutate its operands.
	if a.Ether() != "0.1" || b.Ether() != "0.04" {
		t.Errorf("Add mutated operands: a=%s b=%s", a, b)
	}
}

func TestAmountZeroValue(t *testing.T) {
	var a Amount
	if !a.IsZero() {
		t.Error("zero value Amount should be zero")
	}
	if a.Wei().Sign() != 0 {
		t.Errorf("zero value Wei() = %s", a.Wei())
	}
	if a.Ether() != "0" {
		t.Errorf("zero value Ether() = %q", a.Ether())
	}
}

func TestAmountJSONRoundTrip(t *testing.T) {
	a := MustParseEther("0.123456789")
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var back Amount
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Cmp(a) != 0 {
		t.Errorf("round trip changed value: %s -> %s", a.Wei(), back.Wei())
	}

	var bad Amount
	if err := json.Unmarshal([]byte(`"-5"`), &bad); err == nil {
		t.Error("negative wei should fail to unmarshal")
	}
}

func TestNewAmountCopies(t *testing.T) {
	wei := big.NewInt(42)
	a := NewAmount(wei)
	wei.SetInt64(99)
	if a.Wei().Int64() != 42 {
		t.Errorf("NewAmount did not copy input: got %s", a.Wei())
	}
}
