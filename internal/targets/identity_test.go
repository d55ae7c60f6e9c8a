package targets

import "testing"

func TestDeriveNumericID(t *testing.T) {
	known := map[string]int{"named-server": 4242}

	tests := []struct {
		name     string
		id       string
		hostname string
		want     int
	}{
		{
			name: "numeric id used directly",
			id:   "7020",
			want: 7020,
		},
		{
			name: "known table takes precedence over derivation",
			id:   "named-server",
			want: 4242,
		},
		{
			name: "uuid projects into the stable range",
			id:   "af4fcd7c-0a86-11e7-8e5a-00155d000b0b",
			// 0xaf4fcd7c = 2941242748, mod 10000 = 2748
			want: 2748,
		},
		{
			name:     "hostname digits as last resort",
			id:       "my-server",
			hostname: "us-east-1401.example.net",
			want:     1401,
		},
		{
			name:     "nothing derivable",
			id:       "my-server",
			hostname: "gamehost.example.net",
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveNumericID(tt.id, tt.hostname, known); got != tt.want {
				t.Errorf("DeriveNumericID(%q, %q) = %d, want %d", tt.id, tt.hostname, got, tt.want)
			}
		})
	}
}

func TestDeriveNumericID_UUIDFloor(t *testing.T) {
	// First segment reduces below 1000 and must be lifted into range.
	// 0x000001f4 % 10000 = 500 -> 1500
	got := DeriveNumericID("000001f4-0a86-11e7-8e5a-00155d000b0b", "", nil)
	if got != 1500 {
		t.Errorf("expected 1500, got %d", got)
	}
}
