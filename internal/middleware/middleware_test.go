package middleware

import "testing"

func TestOriginAllowed(t *testing.T) {
	patterns := []string{"http://localhost:*", "http://127.0.0.1:*", "app://tracker"}
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://127.0.0.1:7420", true},
		{"APP://tracker", true},
		{"http://localhost.evil.example", false},
		{"https://localhost:5173", false},
		{"https://evil.example", false},
		{"null", false},
	}
	for _, tt := range tests {
		if got := OriginAllowed(patterns, tt.origin); got != tt.want {
			t.Errorf("OriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
