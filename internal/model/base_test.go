package model

import "testing"

func TestRecord_Persisted(t *testing.T) {
	tests := []struct {
		name string
		row  Domain
		want bool
	}{
		{"zero value", Domain{}, false},
		{"loaded", Domain{Record: Record{ID: 12}, Domain: "www.shop.com"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.row.Persisted(); got != tt.want {
				t.Errorf("Persisted() = %v, want %v", got, tt.want)
			}
		})
	}
}
