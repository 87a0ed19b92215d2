// ABOUTME: Tests for conversation and message identifier formats
// ABOUTME: Verifies generation, parsing, and rejection of malformed ids
package models

import (
	"errors"
	"strings"
	"testing"
)

func TestNewConversationID(t *testing.T) {
	id := NewConversationID()
	if !strings.HasPrefix(id, "conv_") {
		t.Fatalf("NewConversationID() = %q, want conv_ prefix", id)
	}
	if err := ValidateConversationID(id); err != nil {
		t.Errorf("ValidateConversationID(%q) = %v", id, err)
	}
	if other := NewConversationID(); other == id {
		t.Error("two conversation ids should differ")
	}
}

func TestValidateConversationID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid", "conv_0b6f6f0a-3c1e-4c59-9a5e-7b2d1f0e9c8d", false},
		{"missing prefix", "0b6f6f0a-3c1e-4c59-9a5e-7b2d1f0e9c8d", true},
		{"uppercase uuid", "conv_0B6F6F0A-3C1E-4C59-9A5E-7B2D1F0E9C8D", true},
		{"not v4", "conv_0b6f6f0a-3c1e-1c59-9a5e-7b2d1f0e9c8d", true},
		{"message id", "user_0b6f6f0a-3c1e-4c59-9a5e-7b2d1f0e9c8d", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConversationID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateConversationID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("error should wrap ErrValidation, got %v", err)
			}
		})
	}
}

func TestParseMessageID(t *testing.T) {
	pair := NewPairUUID()
	userID, assistantID := PairIDs(pair)

	role, got, err := ParseMessageID(userID)
	if err != nil || role != RoleUser || got != pair {
		t.Errorf("ParseMessageID(%q) = %q, %q, %v", userID, role, got, err)
	}

	role, got, err = ParseMessageID(assistantID)
	if err != nil || role != RoleAssistant || got != pair {
		t.Errorf("ParseMessageID(%q) = %q, %q, %v", assistantID, role, got, err)
	}

	for _, bad := range []string{"", "user_", "system_" + pair, "user-" + pair, "user_" + pair + "x"} {
		if _, _, err := ParseMessageID(bad); !errors.Is(err, ErrValidation) {
			t.Errorf("ParseMessageID(%q) error = %v, want ErrValidation", bad, err)
		}
	}
}

func TestMessage_PairUUID(t *testing.T) {
	pair := NewPairUUID()
	if got := (Message{ID: MessageID(RoleAssistant, pair)}).PairUUID(); got != pair {
		t.Errorf("PairUUID() = %q, want %q", got, pair)
	}
	if got := (Message{ID: "legacy-7"}).PairUUID(); got != "" {
		t.Errorf("PairUUID() on legacy id = %q, want empty", got)
	}
}

func TestAnalysisError_Unwrap(t *testing.T) {
	cause := errors.New("model unreachable")
	err := &AnalysisError{
		ConversationID: "conv_x",
		Database:       "sales",
		Tables:         []string{"orders"},
		Stage:          "complete",
		Err:            cause,
	}

	if !errors.Is(err, cause) {
		t.Error("AnalysisError should unwrap to its cause")
	}
	msg := err.Error()
	for _, part := range []string{"complete", "conv_x", "sales", "orders", "model unreachable"} {
		if !strings.Contains(msg, part) {
			t.Errorf("Error() = %q, missing %q", msg, part)
		}
	}
}
