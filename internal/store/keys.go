package store

import "strings"

// Key layout of the shared store.
const (
	UserPrefix    = "users/"
	GroupPrefix   = "groups/"
	MessagePrefix = "messages/"
	// BlobReleasePrefix holds blob keys whose last referencing message was
	// removed and whose blob may still need deleting.
	BlobReleasePrefix = "blob-releases/"
)

// UserKey addresses a user record.
func UserKey(userID string) string { return UserPrefix + userID }

// GroupKey addresses a group record.
func GroupKey(groupID string) string { return GroupPrefix + groupID }

// GroupMessagesPrefix is the prefix shared by all messages of a group.
func GroupMessagesPrefix(groupID string) string { return MessagePrefix + groupID + "/" }

// MessageKey addresses one message of a group.
func MessageKey(groupID, messageID string) string {
	return GroupMessagesPrefix(groupID) + messageID
}

// BlobReleaseKey addresses the pending release of one blob.
func BlobReleaseKey(blobKey string) string { return BlobReleasePrefix + blobKey }

// ParseMessageKey splits a message key into its group and message ids.
func ParseMessageKey(key string) (groupID, messageID string, ok bool) {
	rest, found := strings.CutPrefix(key, MessagePrefix)
	if !found {
		return "", "", false
	}
	groupID, messageID, ok = strings.Cut(rest, "/")
	if !ok || groupID == "" || messageID == "" {
		return "", "", false
	}
	return groupID, messageID, true
}

// GroupOfKey returns the group a key belongs to, for group and message keys.
func GroupOfKey(key string) (string, bool) {
	if id, ok := strings.CutPrefix(key, GroupPrefix); ok && id != "" {
		return id, true
	}
	if groupID, _, ok := ParseMessageKey(key); ok {
		return groupID, true
	}
	return "", false
}
