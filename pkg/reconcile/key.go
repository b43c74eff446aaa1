package reconcile

import (
	"encoding/hex"
	"strings"
)

const (
	keyPrefix        = "indico-event-"
	encodedKeyPrefix = "indico-eventx-"
	keyDomain        = "@tindico"
)

// SyncKey binds a remote event to the calendar entry created for it. It is
// stored as the entry's iCal UID.
type SyncKey string

func (k SyncKey) String() string {
	return string(k)
}

// Derive returns the sync key for a remote event id. Ids made only of
// [A-Za-z0-9._-] are embedded verbatim; anything else (including the empty
// id) is hex encoded under a distinct prefix so no two ids share a key.
func Derive(remoteID string) SyncKey {
	if remoteID != "" && isPlain(remoteID) {
		return SyncKey(keyPrefix + remoteID + keyDomain)
	}
	return SyncKey(encodedKeyPrefix + hex.EncodeToString([]byte(remoteID)) + keyDomain)
}

// RemoteID recovers the remote id from a key produced by Derive
func RemoteID(k SyncKey) (string, bool) {
	s, ok := strings.CutSuffix(string(k), keyDomain)
	if !ok {
		return "", false
	}
	if rest, ok := strings.CutPrefix(s, encodedKeyPrefix); ok {
		b, err := hex.DecodeString(rest)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
	if rest, ok := strings.CutPrefix(s, keyPrefix); ok && rest != "" && isPlain(rest) {
		return rest, true
	}
	return "", false
}

func isPlain(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
