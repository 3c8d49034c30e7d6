package win32

import "testing"

func TestKeyLParam(t *testing.T) {
	tests := []struct {
		name     string
		scan     uint32
		extended bool
		up       bool
		want     uintptr
	}{
		{"shift down", 0x2A, false, false, 0x002A0001},
		{"shift up", 0x2A, false, true, 0xC02A0001},
		{"right arrow down", 0x4D, true, false, 0x014D0001},
		{"right arrow up", 0x4D, true, true, 0xC14D0001},
		{"scan code masked", 0x1FF, false, false, 0x00FF0001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KeyLParam(tt.scan, tt.extended, tt.up); got != tt.want {
				t.Errorf("KeyLParam() = 0x%08x, want 0x%08x", got, tt.want)
			}
		})
	}
}
