// ABOUTME: Tests for conversation and pair assembly
// ABOUTME: Covers pairing by uuid, half pairs, ordering, and integrity errors
package history

import (
	"errors"
	"testing"

	"github.com/harper/ddl-architect/internal/models"
)

func record(role models.Role, pairUUID, conv, ts, database string, tables ...string) models.Message {
	if tables == nil {
		tables = []string{}
	}
	return models.Message{
		ID:   models.MessageID(role, pairUUID),
		Body: string(role) + " " + pairUUID[:8],
		Metadata: models.Metadata{
			Database:       database,
			Tables:         tables,
			Role:           role,
			Timestamp:      ts,
			ConversationID: conv,
		},
	}
}

func TestAssemble(t *testing.T) {
	convA, convB := models.NewConversationID(), models.NewConversationID()
	p1, p2, p3 := models.NewPairUUID(), models.NewPairUUID(), models.NewPairUUID()

	msgs := []models.Message{
		// Out of order on purpose: assistant before user, newer pair first
		record(models.RoleAssistant, p2, convA, "2025-01-01T00:00:02.000000Z", "sales", "orders"),
		record(models.RoleUser, p1, convA, "2025-01-01T00:00:01.000000Z", "sales", "orders"),
		record(models.RoleUser, p2, convA, "2025-01-01T00:00:02.000000Z", "sales", "orders"),
		record(models.RoleAssistant, p1, convA, "2025-01-01T00:00:01.000000Z", "sales", "orders"),
		record(models.RoleUser, p3, convB, "2025-01-01T00:00:03.000000Z", "hr", "staff"),
		{ID: "orphan", Body: "legacy", Metadata: models.Metadata{Timestamp: "2025-01-01T00:00:04.000000Z"}},
	}

	convs, dropped := Assemble(msgs, 0)
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if len(convs) != 2 {
		t.Fatalf("conversations = %d, want 2", len(convs))
	}

	// convB holds the newest timestamp
	if convs[0].ID != convB || convs[1].ID != convA {
		t.Errorf("order = %s, %s; want %s first", convs[0].ID, convs[1].ID, convB)
	}

	a := convs[1]
	if a.LastUpdated != "2025-01-01T00:00:02.000000Z" {
		t.Errorf("last_updated = %s", a.LastUpdated)
	}
	if a.Database != "sales" || len(a.Tables) != 1 || a.Tables[0] != "orders" {
		t.Errorf("scope = %s/%v", a.Database, a.Tables)
	}
	if len(a.Messages) != 2 {
		t.Fatalf("pairs = %d, want 2", len(a.Messages))
	}
	if a.Messages[0].Prompt != "user "+p1[:8] || a.Messages[0].Response != "assistant "+p1[:8] {
		t.Errorf("first pair = %+v", a.Messages[0])
	}
	if a.Messages[1].ID != models.MessageID(models.RoleUser, p2) {
		t.Errorf("second pair id = %s", a.Messages[1].ID)
	}

	// Half pair keeps its prompt with an empty response
	b := convs[0]
	if len(b.Messages) != 1 || b.Messages[0].Response != "" || b.Messages[0].Prompt == "" {
		t.Errorf("half pair = %+v", b.Messages)
	}
}

func TestAssembleLimit(t *testing.T) {
	var msgs []models.Message
	for _, ts := range []string{"2025-01-01T00:00:01.000000Z", "2025-01-01T00:00:03.000000Z", "2025-01-01T00:00:02.000000Z"} {
		p := models.NewPairUUID()
		conv := models.NewConversationID()
		msgs = append(msgs,
			record(models.RoleUser, p, conv, ts, "sales"),
			record(models.RoleAssistant, p, conv, ts, "sales"))
	}

	convs, _ := Assemble(msgs, 2)
	if len(convs) != 2 {
		t.Fatalf("conversations = %d, want 2", len(convs))
	}
	if convs[0].LastUpdated != "2025-01-01T00:00:03.000000Z" || convs[1].LastUpdated != "2025-01-01T00:00:02.000000Z" {
		t.Errorf("kept %s and %s, want the two newest", convs[0].LastUpdated, convs[1].LastUpdated)
	}
}

func TestAssembleEmpty(t *testing.T) {
	convs, dropped := Assemble(nil, 10)
	if len(convs) != 0 || dropped != 0 {
		t.Errorf("Assemble(nil) = %v, %d", convs, dropped)
	}
}

func TestAssembleOne(t *testing.T) {
	conv := models.NewConversationID()
	p1, p2 := models.NewPairUUID(), models.NewPairUUID()

	tests := []struct {
		name    string
		msgs    []models.Message
		wantErr error
		pairs   int
	}{
		{
			name:    "empty",
			wantErr: models.ErrNotFound,
		},
		{
			name: "two pairs",
			msgs: []models.Message{
				record(models.RoleUser, p2, conv, "2025-01-01T00:00:02.000000Z", "sales", "orders"),
				record(models.RoleAssistant, p2, conv, "2025-01-01T00:00:02.000000Z", "sales", "orders"),
				record(models.RoleUser, p1, conv, "2025-01-01T00:00:01.000000Z", "sales", "orders"),
				record(models.RoleAssistant, p1, conv, "2025-01-01T00:00:01.000000Z", "sales", "orders"),
			},
			pairs: 2,
		},
		{
			name: "diverging scope",
			msgs: []models.Message{
				record(models.RoleUser, p1, conv, "2025-01-01T00:00:01.000000Z", "sales", "orders"),
				record(models.RoleAssistant, p1, conv, "2025-01-01T00:00:01.000000Z", "hr", "orders"),
			},
			wantErr: models.ErrDataIntegrity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AssembleOne(conv, tt.msgs)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("AssembleOne() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("AssembleOne() error = %v", err)
			}
			if len(got.Messages) != tt.pairs {
				t.Fatalf("pairs = %d, want %d", len(got.Messages), tt.pairs)
			}
			for i := 1; i < len(got.Messages); i++ {
				if got.Messages[i-1].Timestamp > got.Messages[i].Timestamp {
					t.Error("pairs not in ascending time order")
				}
			}
		})
	}
}

func TestAssemblePair(t *testing.T) {
	conv := models.NewConversationID()
	p := models.NewPairUUID()
	ts := "2025-01-01T00:00:01.000000Z"
	user := record(models.RoleUser, p, conv, ts, "sales", "orders")
	assistant := record(models.RoleAssistant, p, conv, ts, "sales", "orders")

	tests := []struct {
		name    string
		msgs    []models.Message
		wantErr error
	}{
		{"complete", []models.Message{assistant, user}, nil},
		{"absent", nil, models.ErrNotFound},
		{"half", []models.Message{user}, models.ErrDataIntegrity},
		{"same role twice", []models.Message{user, user}, models.ErrDataIntegrity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AssemblePair(p, tt.msgs)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("AssemblePair() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil {
				if got.Prompt != user.Body || got.Response != assistant.Body {
					t.Errorf("pair = %+v", got)
				}
				if got.ID != user.ID || got.ConversationID != conv {
					t.Errorf("pair ids = %s/%s", got.ID, got.ConversationID)
				}
			}
		})
	}
}
