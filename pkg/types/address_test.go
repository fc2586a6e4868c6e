package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAddress_IsZero(t *testing.T) {
	var zero Address
	if !zero.IsZero() {
		t.Error("zero-value Address should be zero")
	}

	nonZero := Address{0x01}
	if nonZero.IsZero() {
		t.Error("non-zero Address should not be zero")
	}
}

func TestAddress_String(t *testing.T) {
	old := activeAbbr
	defer func() { activeAbbr = old }()

	SetAddressAbbr(MainnetAbbr)

	var a Address
	s := a.String()
	if !strings.HasPrefix(s, "KNT:") {
		t.Errorf("String() should start with 'KNT:', got %s", s)
	}

	a[0] = 0xab
	a[31] = 0xcd
	s = a.String()
	if !strings.HasPrefix(s, "KNT:") {
		t.Errorf("String() should start with 'KNT:', got %s", s)
	}
}

func TestAddress_String_Testnet(t *testing.T) {
	old := activeAbbr
	defer func() { activeAbbr = old }()

	SetAddressAbbr(TestnetAbbr)

	a := Address{0x01}
	s := a.String()
	if !strings.HasPrefix(s, "TNS:") {
		t.Errorf("String() should start with 'TNS:', got %s", s)
	}
}

func TestAddress_Base58_Roundtrip(t *testing.T) {
	old := activeAbbr
	defer func() { activeAbbr = old }()

	SetAddressAbbr(MainnetAbbr)

	var a Address
	for i := range a {
		a[i] = byte(i)
	}

	s := a.String()
	parsed, err := ParseAddress(s)
	if err != nil {
		t.Fatalf("ParseAddress(%q): %v", s, err)
	}
	if parsed != a {
		t.Errorf("roundtrip mismatch: got %x, want %x", parsed, a)
	}
}

func TestAddress_Hex(t *testing.T) {
	a := Address{0xab, 0xcd}
	h := a.Hex()
	if strings.Contains(h, ":") {
		t.Errorf("Hex() should not contain prefix, got %s", h)
	}
	if len(h) != 64 {
		t.Errorf("Hex() length = %d, want 64", len(h))
	}
	if !strings.HasPrefix(h, "abcd") {
		t.Errorf("Hex() should start with 'abcd', got %s", h[:4])
	}
}

func TestAddress_Bytes(t *testing.T) {
	a := Address{0x01, 0x02, 0x03}
	b := a.Bytes()

	if len(b) != AddressSize {
		t.Errorf("Bytes() length = %d, want %d", len(b), AddressSize)
	}
	if b[0] != 0x01 || b[1] != 0x02 || b[2] != 0x03 {
		t.Errorf("Bytes() content mismatch")
	}

	// Ensure it's a copy.
	b[0] = 0xFF
	if a[0] == 0xFF {
		t.Error("Bytes() should return a copy, not a reference")
	}
}

func TestHexToAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:  "valid 64 hex chars",
			input: strings.Repeat("0123456789abcdef", 4),
		},
		{
			name:  "all zeros",
			input: strings.Repeat("0", 64),
		},
		{
			name:    "too short",
			input:   "abcd",
			wantErr: true,
		},
		{
			name:    "too long",
			input:   strings.Repeat("a", 66),
			wantErr: true,
		},
		{
			name:    "invalid hex",
			input:   strings.Repeat("z", 64),
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := HexToAddress(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("HexToAddress(%q) should have returned error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("HexToAddress(%q) unexpected error: %v", tt.input, err)
			}
			if a.Hex() != tt.input {
				t.Errorf("roundtrip: got %s, want %s", a.Hex(), tt.input)
			}
		})
	}
}

func TestParseAddress(t *testing.T) {
	old := activeAbbr
	defer func() { activeAbbr = old }()

	SetAddressAbbr(MainnetAbbr)

	rawHex := strings.Repeat("0123456789abcdef", 4)

	a, _ := HexToAddress(rawHex)
	mainnetForm := a.String()

	SetAddressAbbr(TestnetAbbr)
	testnetForm := a.String()
	SetAddressAbbr(MainnetAbbr)

	tests := []struct {
		name    string
		input   string
		wantHex string
		wantErr bool
	}{
		{"raw hex", rawHex, rawHex, false},
		{"prefixed mainnet", mainnetForm, rawHex, false},
		{"prefixed testnet", testnetForm, rawHex, false},
		{"raw base58 no prefix", a.String()[len(MainnetAbbr)+1:], rawHex, false},
		{"wrong length hex", "KNT:" + "abcd", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseAddress(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseAddress(%q) should have returned error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q) unexpected error: %v", tt.input, err)
			}
			if a.Hex() != tt.wantHex {
				t.Errorf("ParseAddress(%q) hex = %s, want %s", tt.input, a.Hex(), tt.wantHex)
			}
		})
	}
}

func TestAddress_JSON_RoundTrip(t *testing.T) {
	old := activeAbbr
	defer func() { activeAbbr = old }()

	SetAddressAbbr(MainnetAbbr)

	original := Address{0xab, 0xcd, 0xef}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if !strings.Contains(string(data), "KNT:") {
		t.Errorf("JSON should contain the abbreviation prefix, got %s", string(data))
	}

	var decoded Address
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if original != decoded {
		t.Errorf("roundtrip mismatch: original=%x, decoded=%x", original, decoded)
	}
}

func TestAddress_JSON_UnmarshalRawHex(t *testing.T) {
	rawJSON := `"` + strings.Repeat("0123456789abcdef", 4) + `"`

	var a Address
	if err := json.Unmarshal([]byte(rawJSON), &a); err != nil {
		t.Fatalf("Unmarshal raw hex: %v", err)
	}
	if a.Hex() != strings.Repeat("0123456789abcdef", 4) {
		t.Errorf("unexpected address: %s", a.Hex())
	}
}

func TestAddress_JSON_UnmarshalPrefixed(t *testing.T) {
	old := activeAbbr
	defer func() { activeAbbr = old }()

	SetAddressAbbr(MainnetAbbr)

	original := Address{0x01, 0x02, 0x03}
	prefixed := original.String()

	jsonStr := `"` + prefixed + `"`
	var decoded Address
	if err := json.Unmarshal([]byte(jsonStr), &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("decoded=%x, want=%x", decoded, original)
	}
}

func TestSetAddressAbbr(t *testing.T) {
	old := activeAbbr
	defer func() { activeAbbr = old }()

	SetAddressAbbr(TestnetAbbr)
	if GetAddressAbbr() != TestnetAbbr {
		t.Errorf("GetAddressAbbr() = %s, want %s", GetAddressAbbr(), TestnetAbbr)
	}

	SetAddressAbbr(MainnetAbbr)
	if GetAddressAbbr() != MainnetAbbr {
		t.Errorf("GetAddressAbbr() = %s, want %s", GetAddressAbbr(), MainnetAbbr)
	}
}
