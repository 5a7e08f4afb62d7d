package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// HashString returns the first 16 hex characters of the SHA-256 of s.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// HashObject hashes the JSON encoding of v.
func HashObject(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return HashString(fmt.Sprintf("%v", v))
	}
	return HashString(string(data))
}

// StateSignature fingerprints an application state: the route, a DOM hash and
// arbitrary state values. Key order of state does not affect the result.
func StateSignature(route, domSignature string, state map[string]any) string {
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := state[k]
		if v == nil {
			v = ""
		}
		parts = append(parts, fmt.Sprintf("%s:%v", k, v))
	}

	return HashString(route + "::" + domSignature + "::" + strings.Join(parts, "|"))
}
