package sub

import (
	"encoding/base64"
	"errors"
	"strings"
	"unicode/utf8"
)

// decodeBlob decodes a whole subscription body as base64 text. Whitespace is
// stripped first because many providers wrap the blob. The decoded bytes must
// be valid UTF-8 to count as a link list.
func decodeBlob(s string) (string, error) {
	s = removeSpaceTabCRLF(s)
	if s == "" {
		return "", errors.New("empty body")
	}
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err != nil {
			lastErr = err
			continue
		}
		if !utf8.Valid(b) {
			return "", errors.New("decoded subscription is not valid utf-8")
		}
		return string(b), nil
	}
	return "", lastErr
}

func removeSpaceTabCRLF(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
