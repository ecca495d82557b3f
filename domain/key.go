package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// IdempotencyKey derives the key for a proposed action. Keys are bucketed by
// the chat turn (message id) that produced the proposal: the same logical
// action proposed again in a later turn gets a fresh key, while a duplicate
// submission within one turn maps to the existing record. Argument objects are
// canonicalized so field order does not affect the key.
func IdempotencyKey(conversationID, messageID, toolName string, args json.RawMessage) string {
	h := sha256.New()
	for _, part := range []string{conversationID, messageID, toolName, canonicalJSON(args)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "idem_" + hex.EncodeToString(h.Sum(nil))[:32]
}

// canonicalJSON re-marshals an argument object so that map keys come out
// sorted. Unparseable input hashes as-is.
func canonicalJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return string(raw)
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return string(raw)
	}
	return string(out)
}
