// Package sub classifies raw subscription bodies and turns them into
// canonical Nodes. Classification is an ordered-rule sniffer; each rule is
// unit-testable on its own via DetectFormat.
package sub

import (
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/subgeo/subgeo/internal/model"
	"github.com/subgeo/subgeo/internal/sub/link"
)

// Format is the detected subscription encoding.
type Format string

const (
	FormatClash    Format = "clash"    // dialect A: YAML document with a proxies list
	FormatSingBox  Format = "singbox"  // dialect B: JSON document with outbounds
	FormatEncoded  Format = "encoded"  // base64 blob of newline-separated links
	FormatRawLinks Format = "rawlinks" // newline-separated links, no encoding
)

// DetectFormat applies the detection rules in order, first match wins:
//  1. a "proxies:" key next to a proxy-groups/Proxy marker → clash YAML
//  2. a JSON object containing an "outbounds" key → sing-box JSON
//  3. whole body decodes as base64 → encoded link list
//  4. otherwise → raw link list
func DetectFormat(body string) Format {
	trimmed := strings.TrimSpace(body)
	if strings.Contains(trimmed, "proxies:") &&
		(strings.Contains(trimmed, "proxy-groups") || strings.Contains(trimmed, "Proxy")) {
		return FormatClash
	}
	if strings.HasPrefix(trimmed, "{") && strings.Contains(trimmed, `"outbounds"`) {
		return FormatSingBox
	}
	if _, err := decodeBlob(trimmed); err == nil {
		return FormatEncoded
	}
	return FormatRawLinks
}

// Parser builds Nodes from one subscription body. It never fails past this
// boundary: malformed documents and unresolvable lines yield fewer (possibly
// zero) nodes, logged and dropped.
type Parser struct {
	Log *logrus.Logger
}

func (p Parser) logger() *logrus.Logger {
	if p.Log != nil {
		return p.Log
	}
	return logrus.StandardLogger()
}

func (p Parser) Parse(body string) []model.Node {
	switch DetectFormat(body) {
	case FormatClash:
		return p.parseClashDocument(body)
	case FormatSingBox:
		return p.parseSingBoxDocument(body)
	case FormatEncoded:
		decoded, err := decodeBlob(strings.TrimSpace(body))
		if err != nil {
			// Detection raced nothing: decode again for the content this time;
			// fall back to raw lines on failure.
			return p.parseLinkLines(body)
		}
		return p.parseLinkLines(decoded)
	default:
		return p.parseLinkLines(body)
	}
}

type clashDocument struct {
	Proxies []map[string]any `yaml:"proxies"`
}

func (p Parser) parseClashDocument(body string) []model.Node {
	var doc clashDocument
	if err := yaml.Unmarshal([]byte(body), &doc); err != nil {
		p.logger().WithError(err).Warn("clash 订阅文档解析失败，按 0 节点处理")
		return nil
	}
	nodes := make([]model.Node, 0, len(doc.Proxies))
	for _, entry := range doc.Proxies {
		nodes = append(nodes, nodeFromClashEntry(entry))
	}
	return nodes
}

type singBoxDocument struct {
	Outbounds []map[string]any `json:"outbounds"`
}

func (p Parser) parseSingBoxDocument(body string) []model.Node {
	var doc singBoxDocument
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		p.logger().WithError(err).Warn("sing-box 订阅文档解析失败，按 0 节点处理")
		return nil
	}
	var nodes []model.Node
	for _, entry := range doc.Outbounds {
		typ, _ := entry["type"].(string)
		switch model.Protocol(typ) {
		case model.ProtocolVMess, model.ProtocolTrojan, model.ProtocolShadowsocks,
			model.ProtocolVLESS, model.ProtocolHysteria2:
			nodes = append(nodes, nodeFromSingBoxEntry(entry))
		}
	}
	return nodes
}

func (p Parser) parseLinkLines(content string) []model.Node {
	var nodes []model.Node
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		n, err := link.Parse(line)
		if err != nil {
			p.logger().WithField("snippet", firstN(line, 64)).Debug("忽略无法解析的订阅行")
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
