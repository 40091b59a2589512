package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/mr-tron/base58"

	"strategy-swarm/internal/domain"
)

// ComputeGenomeID computes a deterministic genome id using SHA256.
// Formula: SHA256(symbol|strategy_type|generation|sorted(key=value)...|birth_unix_nano)
// Parameters are serialized in sorted key order so the id is independent of
// map iteration order. Returns hex-encoded hash (64 characters).
func ComputeGenomeID(
	symbol string,
	strategyType string,
	generation int,
	params map[string]domain.ParamValue,
	birthUnixNano int64,
) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|%s|%d", symbol, strategyType, generation)
	for _, k := range keys {
		v := params[k]
		switch v.Kind {
		case domain.ParamFloat:
			fmt.Fprintf(&sb, "|%s=f:%g", k, v.Float)
		case domain.ParamInt:
			fmt.Fprintf(&sb, "|%s=i:%d", k, v.Int)
		case domain.ParamBool:
			fmt.Fprintf(&sb, "|%s=b:%t", k, v.Bool)
		case domain.ParamString:
			fmt.Fprintf(&sb, "|%s=s:%s", k, v.String)
		}
	}
	fmt.Fprintf(&sb, "|%d", birthUnixNano)

	hash := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(hash[:])
}

// ShortID returns a compact base58 rendering of the first 8 bytes of a hex
// genome id, for logs and reports. Returns the input unchanged if it is not
// valid hex.
func ShortID(genomeID string) string {
	raw, err := hex.DecodeString(genomeID)
	if err != nil || len(raw) < 8 {
		return genomeID
	}
	return base58.Encode(raw[:8])
}
