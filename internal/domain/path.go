package domain

// ConversationPath builds the hierarchical path addressing a conversation's
// message collection. A caller identity selects the private per-chat
// collection; without one the event-wide public collection is used.
//
//	/events/{eventID}/private/{chatID}/messages   (caller identity present)
//	/events/{eventID}/public/messages             (anonymous audience)
func ConversationPath(eventID, chatID, userID string) string {
	if userID != "" && chatID != "" {
		return "/events/" + eventID + "/private/" + chatID + "/messages"
	}
	return "/events/" + eventID + "/public/messages"
}
