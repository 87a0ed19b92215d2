// ABOUTME: Identifier formats for conversations and paired messages
// ABOUTME: conv_<uuid> for conversations, {role}_<uuid> for the two halves of a pair
package models

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

const conversationPrefix = "conv_"

const uuidV4Pattern = `[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}`

var (
	conversationIDPattern = regexp.MustCompile(`^conv_` + uuidV4Pattern + `$`)
	messageIDPattern      = regexp.MustCompile(`^(user|assistant)_(` + uuidV4Pattern + `)$`)
)

// NewConversationID mints a fresh conversation identifier
func NewConversationID() string {
	return conversationPrefix + uuid.NewString()
}

// NewPairUUID mints the uuid shared by both messages of a pair
func NewPairUUID() string {
	return uuid.NewString()
}

// MessageID builds the id of one half of a pair
func MessageID(role Role, pairUUID string) string {
	return string(role) + "_" + pairUUID
}

// PairIDs returns the user and assistant ids for a pair uuid
func PairIDs(pairUUID string) (userID, assistantID string) {
	return MessageID(RoleUser, pairUUID), MessageID(RoleAssistant, pairUUID)
}

// ValidateConversationID checks the conv_<uuid-v4> format
func ValidateConversationID(id string) error {
	if !conversationIDPattern.MatchString(id) {
		return fmt.Errorf("%w: invalid conversation id %q, expected conv_<uuid>", ErrValidation, id)
	}
	return nil
}

// ParseMessageID splits a (user|assistant)_<uuid-v4> id into role and pair uuid
func ParseMessageID(id string) (Role, string, error) {
	m := messageIDPattern.FindStringSubmatch(id)
	if m == nil {
		return "", "", fmt.Errorf("%w: invalid history id %q, expected user_<uuid> or assistant_<uuid>", ErrValidation, id)
	}
	return Role(m[1]), m[2], nil
}
