// Package tsv reads and writes the tab-delimited relationship,
// announcement and results records of spec section 6, including the
// brace-delimited AS-list micro-format shared by all three.
package tsv

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/route-beacon/bgpextrapolate/internal/rib"
)

// ParseASList parses a brace-delimited, comma-separated ASN list such as
// "{1,2,3}". "{}" and "{ }" both parse to an empty (nil) list. Surrounding
// whitespace around the braces and around each token is tolerated. A
// literal zero is rejected: ASN 0 is a reserved sentinel, never a real
// AS_PATH hop.
func ParseASList(s string) ([]rib.ASN, error) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return nil, fmt.Errorf("tsv: AS list missing braces: %q", s)
	}
	inner := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	if inner == "" {
		return nil, nil
	}

	tokens := strings.Split(inner, ",")
	out := make([]rib.ASN, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		v, err := strconv.ParseUint(tok, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("tsv: invalid ASN %q in list %q: %w", tok, s, err)
		}
		if v == 0 {
			return nil, fmt.Errorf("tsv: literal zero ASN is a reserved sentinel, disallowed in list %q", s)
		}
		out = append(out, rib.ASN(v))
	}
	return out, nil
}

// FormatASList is ParseASList's inverse: it renders an ASN list back into
// brace-delimited form, "{}" for an empty list.
func FormatASList(asns []rib.ASN) string {
	if len(asns) == 0 {
		return "{}"
	}
	parts := make([]string, len(asns))
	for i, a := range asns {
		parts[i] = strconv.FormatUint(uint64(a), 10)
	}
	return "{" + strings.Join(parts, ",") + "}"
}
