package main

import "testing"

func TestIntervention(t *testing.T) {
	tests := []struct {
		cmd     string
		args    []string
		kind    string
		wantErr bool
	}{
		{"note", []string{"hello"}, "note", false},
		{"note", nil, "", true},
		{"deposit", []string{"a", "currency:EUR", "10"}, "deposit", false},
		{"deposit", []string{"a", "currency:EUR", "ten"}, "", true},
		{"provision", []string{"firm", "fish"}, "provision", false},
		{"provision", []string{"firm", "fish", "x"}, "", true},
		{"withdraw", []string{"a"}, "withdraw_offers", false},
		{"deconstruct", []string{"a"}, "deconstruct", false},
		{"explode", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			iv, err := intervention(tt.cmd, tt.args)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", iv)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if iv.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", iv.Kind, tt.kind)
			}
		})
	}
}

func TestProvisionCount(t *testing.T) {
	iv, err := intervention("provision", []string{"dealer", "tools", "4"})
	if err != nil {
		t.Fatal(err)
	}
	if iv.Role != "dealer" || iv.Good != "tools" || iv.Count != 4 {
		t.Errorf("iv = %+v", iv)
	}
}
