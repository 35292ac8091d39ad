package router

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// canonicalArgs serializes args deterministically: compact JSON with
// object keys sorted at every level (encoding/json sorts map keys).
// This is the only serialization the router hashes or measures.
func canonicalArgs(args map[string]any) ([]byte, error) {
	if args == nil {
		args = map[string]any{}
	}
	return json.Marshal(args)
}

// hashArgs returns the SHA-256 hex digest (64 chars) of the canonical
// argument serialization. The audit log stores this hash and never the
// raw arguments.
func hashArgs(args map[string]any) (string, int, error) {
	canonical, err := canonicalArgs(args)
	if err != nil {
		return "", 0, err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), len(canonical), nil
}
