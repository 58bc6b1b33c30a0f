package httpapi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// chatMLMessage is one element of the ChatML form of user_message.
type chatMLMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// normalizeUserMessage accepts either a plain string or a ChatML array and
// returns the text to append as the turn's user Step plus any system-role
// content to prepend to the global prompt for this turn only. A string
// input normalizes to a single {role: user} element per the backward-
// compatibility rule. assistant-role elements are accepted but ignored:
// they restate history memory already carries.
func normalizeUserMessage(raw json.RawMessage) (userText, systemPrefix string, err error) {
	if len(raw) == 0 {
		return "", "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, "", nil
	}

	var messages []chatMLMessage
	if err := json.Unmarshal(raw, &messages); err != nil {
		return "", "", fmt.Errorf("user_message: must be a string or a ChatML array: %w", err)
	}

	var userParts, systemParts []string
	for _, m := range messages {
		switch m.Role {
		case "user":
			userParts = append(userParts, m.Content)
		case "system":
			systemParts = append(systemParts, m.Content)
		case "assistant":
			// historical turn, already reflected in memory
		default:
			return "", "", &InvalidRoleError{Role: m.Role}
		}
	}
	return strings.Join(userParts, "\n"), strings.Join(systemParts, "\n"), nil
}
