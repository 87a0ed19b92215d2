// ABOUTME: Rebuilds conversations and pairs from the flat record set a store returns
// ABOUTME: Pure transforms; records are always paired by their shared pair uuid
package history

import (
	"fmt"
	"sort"

	"github.com/harper/ddl-architect/internal/models"
)

// Assemble groups records into conversations, newest first, truncated to limit
// (limit <= 0 keeps everything). Records without a conversation id are skipped
// and counted in dropped.
func Assemble(msgs []models.Message, limit int) (convs []models.Conversation, dropped int) {
	groups := map[string][]models.Message{}
	var order []string
	for _, m := range msgs {
		id := m.Metadata.ConversationID
		if id == "" {
			dropped++
			continue
		}
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], m)
	}

	convs = make([]models.Conversation, 0, len(order))
	for _, id := range order {
		convs = append(convs, buildConversation(id, groups[id]))
	}

	sort.SliceStable(convs, func(i, j int) bool {
		if convs[i].LastUpdated != convs[j].LastUpdated {
			return convs[i].LastUpdated > convs[j].LastUpdated
		}
		return convs[i].ID < convs[j].ID
	})

	if limit > 0 && len(convs) > limit {
		convs = convs[:limit]
	}
	return convs, dropped
}

// AssembleOne builds a single conversation from all of its records
func AssembleOne(conversationID string, msgs []models.Message) (models.Conversation, error) {
	if len(msgs) == 0 {
		return models.Conversation{}, fmt.Errorf("%w: conversation %s", models.ErrNotFound, conversationID)
	}

	first := msgs[0].Metadata
	for _, m := range msgs {
		if m.Metadata.ConversationID != conversationID {
			return models.Conversation{}, fmt.Errorf("%w: record %s belongs to %q, not %s",
				models.ErrDataIntegrity, m.ID, m.Metadata.ConversationID, conversationID)
		}
		if !m.Metadata.SameScope(first) {
			return models.Conversation{}, fmt.Errorf("%w: conversation %s mixes scope %s/%v and %s/%v",
				models.ErrDataIntegrity, conversationID, first.Database, first.Tables, m.Metadata.Database, m.Metadata.Tables)
		}
	}

	return buildConversation(conversationID, msgs), nil
}

// AssemblePair builds the pair addressed by a legacy item id from the records fetched for it
func AssemblePair(pairUUID string, msgs []models.Message) (models.PairView, error) {
	switch len(msgs) {
	case 0:
		return models.PairView{}, fmt.Errorf("%w: pair %s", models.ErrNotFound, pairUUID)
	case 2:
	default:
		return models.PairView{}, fmt.Errorf("%w: pair %s has %d records, want 2",
			models.ErrDataIntegrity, pairUUID, len(msgs))
	}

	var user, assistant *models.Message
	for i := range msgs {
		switch msgs[i].Metadata.EffectiveRole() {
		case models.RoleUser:
			user = &msgs[i]
		case models.RoleAssistant:
			assistant = &msgs[i]
		}
	}
	if user == nil || assistant == nil {
		return models.PairView{}, fmt.Errorf("%w: pair %s lacks a user or assistant record",
			models.ErrDataIntegrity, pairUUID)
	}
	if user.Metadata.Timestamp != assistant.Metadata.Timestamp ||
		user.Metadata.ConversationID != assistant.Metadata.ConversationID {
		return models.PairView{}, fmt.Errorf("%w: pair %s halves disagree on timestamp or conversation",
			models.ErrDataIntegrity, pairUUID)
	}

	return models.PairView{
		ID:             user.ID,
		ConversationID: user.Metadata.ConversationID,
		Prompt:         user.Body,
		Response:       assistant.Body,
		Database:       user.Metadata.Database,
		Tables:         user.Metadata.Tables,
		Timestamp:      user.Metadata.Timestamp,
	}, nil
}

func buildConversation(id string, msgs []models.Message) models.Conversation {
	conv := models.Conversation{
		ID:       id,
		Database: msgs[0].Metadata.Database,
		Tables:   msgs[0].Metadata.Tables,
	}
	if conv.Tables == nil {
		conv.Tables = []string{}
	}

	pairs := map[string]*models.PairView{}
	var keys []string
	for _, m := range msgs {
		if m.Metadata.Timestamp > conv.LastUpdated {
			conv.LastUpdated = m.Metadata.Timestamp
		}

		key := m.PairUUID()
		if key == "" {
			key = m.ID
		}
		p, ok := pairs[key]
		if !ok {
			p = &models.PairView{
				ID:             m.ID,
				ConversationID: id,
				Database:       m.Metadata.Database,
				Tables:         m.Metadata.Tables,
				Timestamp:      m.Metadata.Timestamp,
			}
			pairs[key] = p
			keys = append(keys, key)
		}

		switch m.Metadata.EffectiveRole() {
		case models.RoleAssistant:
			p.Response = m.Body
		default:
			p.Prompt = m.Body
			p.ID = m.ID
		}
		if m.Metadata.Timestamp < p.Timestamp {
			p.Timestamp = m.Metadata.Timestamp
		}
	}

	conv.Messages = make([]models.PairView, 0, len(keys))
	for _, k := range keys {
		conv.Messages = append(conv.Messages, *pairs[k])
	}
	sort.SliceStable(conv.Messages, func(i, j int) bool {
		if conv.Messages[i].Timestamp != conv.Messages[j].Timestamp {
			return conv.Messages[i].Timestamp < conv.Messages[j].Timestamp
		}
		return conv.Messages[i].ID < conv.Messages[j].ID
	})
	return conv
}
