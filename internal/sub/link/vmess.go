package link

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/subgeo/subgeo/internal/model"
)

// vmessPayload is the JSON document base64-encoded after "vmess://".
// Numeric fields arrive as either numbers or strings depending on the client
// that generated the link, hence json.RawMessage-free loose typing.
type vmessPayload struct {
	V    any    `json:"v,omitempty"`
	PS   string `json:"ps,omitempty"`
	Add  string `json:"add"`
	Port any    `json:"port"`
	ID   string `json:"id"`
	Aid  any    `json:"aid,omitempty"`
	Scy  string `json:"scy,omitempty"`
	Net  string `json:"net,omitempty"`
	Type string `json:"type,omitempty"`
	Host string `json:"host,omitempty"`
	Path string `json:"path,omitempty"`
	TLS  string `json:"tls,omitempty"`
	SNI  string `json:"sni,omitempty"`
}

func ParseVMess(line string) (model.Node, error) {
	rest := strings.TrimPrefix(line, "vmess://")
	if rest == "" {
		return model.Node{}, newParseError(line, "LINK_PARSE_ERROR", "vmess:// 后缺少内容", "", nil)
	}

	decoded, err := decodeB64ToString(strings.TrimSpace(rest))
	if err != nil {
		return model.Node{}, newParseError(line, "LINK_PARSE_ERROR", "vmess base64 解码失败", "", err)
	}

	var p vmessPayload
	if err := json.Unmarshal([]byte(decoded), &p); err != nil {
		return model.Node{}, newParseError(line, "LINK_PARSE_ERROR", "vmess JSON 解析失败", "", err)
	}

	port := coerceInt(p.Port, 0)
	if p.Add == "" || port < 1 || port > 65535 || p.ID == "" {
		return model.Node{}, newParseError(line, "LINK_PARSE_ERROR", "vmess 缺少 add/port/id 字段", "", nil)
	}

	name := strings.TrimSpace(p.PS)
	if name == "" {
		name = "Unnamed VMess"
	}

	n := model.Node{
		Name:     name,
		Protocol: model.ProtocolVMess,
		Server:   p.Add,
		Port:     port,
		VMess: &model.VMess{
			UUID:    p.ID,
			AlterID: coerceInt(p.Aid, 0),
			Cipher:  defaultString(p.Scy, "auto"),
		},
		Transport: model.Transport{Net: p.Net},
		Origin:    model.OriginLink,
		Raw:       line,
	}
	if p.Net == "ws" {
		n.Transport.WSPath = defaultString(p.Path, "/")
		n.Transport.WSHost = p.Host
	}
	if p.TLS == "tls" {
		n.TLS.Enabled = true
		n.TLS.SNI = defaultString(p.SNI, p.Host)
	}
	return n, nil
}

func serializeVMess(n *model.Node) string {
	payload := map[string]string{
		"v":    "2",
		"ps":   n.Name,
		"add":  n.Server,
		"port": strconv.Itoa(n.Port),
		"id":   n.VMess.UUID,
		"aid":  strconv.Itoa(n.VMess.AlterID),
		"scy":  n.VMess.Cipher,
		"net":  defaultString(n.Transport.Net, "tcp"),
		"type": "none",
	}
	if n.Transport.Net == "ws" {
		payload["path"] = n.Transport.WSPath
		payload["host"] = n.Transport.WSHost
	}
	if n.TLS.Enabled {
		payload["tls"] = "tls"
		payload["sni"] = n.TLS.SNI
	}
	// Empty values break some clients; drop them before encoding.
	for k, v := range payload {
		if v == "" {
			delete(payload, k)
		}
	}
	raw, _ := json.Marshal(payload)
	return "vmess://" + base64.StdEncoding.EncodeToString(raw)
}

func coerceInt(v any, def int) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return i
		}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
	}
	return def
}

func defaultString(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
