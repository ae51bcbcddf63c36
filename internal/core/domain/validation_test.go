package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateDuration(t *testing.T) {
	tests := []struct {
		days    int
		wantErr bool
	}{
		{1, false},
		{30, false},
		{MaxDurationDays, false},
		{0, true},
		{-5, true},
		{MaxDurationDays + 1, true},
	}

	for _, tt := range tests {
		err := ValidateDuration(tt.days)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateDuration(%d) error = %v, wantErr %v", tt.days, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("ValidateDuration(%d) should wrap ErrInvalidDuration, got %v", tt.days, err)
		}
	}
}

func TestValidateApplicationName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"my-app", false},
		{"", true},
		{"   ", true},
		{strings.Repeat("a", MaxApplicationNameLength), false},
		{strings.Repeat("a", MaxApplicationNameLength+1), true},
	}

	for _, tt := range tests {
		if err := ValidateApplicationName(tt.name); (err != nil) != tt.wantErr {
			t.Errorf("ValidateApplicationName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestValidateHardwareID(t *testing.T) {
	tests := []struct {
		hwid    string
		wantErr bool
	}{
		{"HW1", false},
		{strings.Repeat("h", MaxHardwareIDLength), false},
		{"", true},
		{strings.Repeat("h", MaxHardwareIDLength+1), true},
	}

	for _, tt := range tests {
		err := ValidateHardwareID(tt.hwid)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateHardwareID(len %d) error = %v, wantErr %v", len(tt.hwid), err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidHardwareID) {
			t.Errorf("ValidateHardwareID(len %d) should wrap ErrInvalidHardwareID, got %v", len(tt.hwid), err)
		}
	}
}

func TestBanRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     BanRequest
		wantErr bool
	}{
		{"key only", BanRequest{Key: "ECL-ABCDEFGHIJKLMNOP"}, false},
		{"hwid only", BanRequest{HardwareID: "HW1"}, false},
		{"both", BanRequest{Key: "ECL-ABCDEFGHIJKLMNOP", HardwareID: "HW1", Reason: "chargeback"}, false},
		{"neither", BanRequest{Reason: "no target"}, true},
		{"reason too long", BanRequest{Key: "k", Reason: strings.Repeat("x", MaxBanReasonLength+1)}, true},
		{"multibyte reason at limit", BanRequest{Key: "k", Reason: strings.Repeat("ü", MaxBanReasonLength)}, false},
		{"hwid too long", BanRequest{HardwareID: strings.Repeat("h", MaxHardwareIDLength+1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidBan) {
				t.Errorf("expected ErrInvalidBan, got %v", err)
			}
		})
	}
}

func TestKeyHint(t *testing.T) {
	if got := KeyHint("ECL-ABCDEFGHIJKLMNOP"); got != "ECL-ABCD****" {
		t.Errorf("KeyHint = %q", got)
	}
	if got := KeyHint("short"); got != "****" {
		t.Errorf("KeyHint(short) = %q", got)
	}
	if got := KeyHint("ECL-AB"); got != "****" {
		t.Errorf("KeyHint(ECL-AB) = %q", got)
	}
}
