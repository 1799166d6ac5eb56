// Package link decodes scheme-prefixed proxy links into canonical Nodes and
// regenerates links from relabeled Nodes. One pure parse function per scheme;
// a parser either returns a complete Node or a ParseError, never a partial
// node.
package link

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/subgeo/subgeo/internal/model"
)

type ParseError struct {
	AppError model.AppError
	Cause    error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// Parse dispatches on the scheme prefix. Unknown schemes are a ParseError so
// the caller can decide whether to drop the line or carry an unknown node.
func Parse(line string) (model.Node, error) {
	switch {
	case strings.HasPrefix(line, "vmess://"):
		return ParseVMess(line)
	case strings.HasPrefix(line, "trojan://"):
		return ParseTrojan(line)
	case strings.HasPrefix(line, "ss://"):
		return ParseShadowsocks(line)
	case strings.HasPrefix(line, "vless://"):
		return ParseVLESS(line)
	case strings.HasPrefix(line, "hysteria2://"), strings.HasPrefix(line, "hy2://"):
		return ParseHysteria2(line)
	default:
		return model.Node{}, newParseError(line, "LINK_UNSUPPORTED_SCHEME", "不支持的链接协议", "", nil)
	}
}

// Serialize regenerates a link of the node's native scheme, embedding the
// node's current (possibly relabeled) name. ok is false when the protocol has
// no regeneration support; callers then fall back to the raw original link.
func Serialize(n *model.Node) (link string, ok bool) {
	switch n.Protocol {
	case model.ProtocolVMess:
		return serializeVMess(n), true
	case model.ProtocolTrojan:
		return serializeTrojan(n), true
	case model.ProtocolShadowsocks:
		return serializeShadowsocks(n), true
	case model.ProtocolVLESS:
		return serializeVLESS(n), true
	case model.ProtocolHysteria2:
		return serializeHysteria2(n), true
	default:
		return "", false
	}
}

func parseHostPort(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, err
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "", 0, errors.New("empty host")
	}
	port, err := strconv.Atoi(strings.TrimSpace(portStr))
	if err != nil {
		return "", 0, err
	}
	if port < 1 || port > 65535 {
		return "", 0, errors.New("port out of range")
	}
	return host, port, nil
}

func decodeB64ToBytes(s string) ([]byte, error) {
	// Try standard alphabet (with padding) first, then URL-safe, then raw.
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func decodeB64ToString(s string) (string, error) {
	b, err := decodeB64ToBytes(s)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.New("decoded link is not valid utf-8")
	}
	return string(b), nil
}

// decodeFragmentName turns a raw, still percent-escaped URI fragment into a
// display name. Callers going through url.Parse must pass EscapedFragment,
// not Fragment, so names containing a literal % are decoded exactly once.
func decodeFragmentName(frag, fallback string) string {
	if frag == "" {
		return fallback
	}
	decoded, err := url.PathUnescape(frag)
	if err != nil {
		return fallback
	}
	decoded = strings.TrimSpace(decoded)
	if decoded == "" || strings.ContainsAny(decoded, "\r\n\x00") {
		return fallback
	}
	return decoded
}

func truncateSnippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func newParseError(line, code, message, hint string, cause error) error {
	return &ParseError{
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   "parse_link",
			Snippet: truncateSnippet(line, 200),
			Hint:    hint,
		},
		Cause: cause,
	}
}
