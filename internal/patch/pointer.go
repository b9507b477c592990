package patch

import (
	"fmt"
	"strconv"
	"strings"
)

// parsePointer splits a JSON-Pointer into its unescaped tokens. An empty
// path yields an empty token list (root). Non-empty paths must start
// with '/'. Escapes: ~1 -> '/', ~0 -> '~'; a bare '~' not followed by 0
// or 1 is an error.
func parsePointer(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if path[0] != '/' {
		return nil, fmt.Errorf("patch: pointer %q must start with '/'", path)
	}

	raw := strings.Split(path[1:], "/")
	tokens := make([]string, len(raw))
	for i, r := range raw {
		tok, err := unescapeToken(r)
		if err != nil {
			return nil, fmt.Errorf("patch: pointer %q: %w", path, err)
		}
		tokens[i] = tok
	}
	return tokens, nil
}

func unescapeToken(tok string) (string, error) {
	if !strings.Contains(tok, "~") {
		return tok, nil
	}
	var b strings.Builder
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		if c != '~' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(tok) {
			return "", fmt.Errorf("trailing '~' in token %q", tok)
		}
		switch tok[i+1] {
		case '0':
			b.WriteByte('~')
		case '1':
			b.WriteByte('/')
		default:
			return "", fmt.Errorf("invalid escape '~%c' in token %q", tok[i+1], tok)
		}
		i++
	}
	return b.String(), nil
}

// arrayIndex decodes a decimal array token. Returns ok=false if tok is
// not a valid non-negative decimal integer.
func arrayIndex(tok string) (int, bool) {
	if tok == "" {
		return 0, false
	}
	for _, c := range tok {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, false
	}
	return n, true
}
