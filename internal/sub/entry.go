package sub

import (
	"strconv"
	"strings"

	"github.com/subgeo/subgeo/internal/model"
)

// nodeFromClashEntry lifts one dialect-A proxy entry into a Node. The entry is
// kept verbatim in Fields so re-serialization can round-trip keys this model
// does not understand. Unrecognized types become ProtocolUnknown and are
// carried through the pipeline, not dropped.
func nodeFromClashEntry(entry map[string]any) model.Node {
	n := model.Node{
		Name:   asString(entry["name"]),
		Server: asString(entry["server"]),
		Port:   asInt(entry["port"]),
		Transport: model.Transport{
			Net: asString(entry["network"]),
		},
		TLS: model.TLS{
			Enabled:    asBool(entry["tls"]),
			SNI:        firstString(entry["sni"], entry["servername"]),
			SkipVerify: asBool(entry["skip-cert-verify"]),
		},
		Origin: model.OriginClash,
		Fields: entry,
	}
	if ws, ok := entry["ws-opts"].(map[string]any); ok {
		n.Transport.WSPath = asString(ws["path"])
		if headers, ok := ws["headers"].(map[string]any); ok {
			n.Transport.WSHost = firstString(headers["Host"], headers["host"])
		}
	}

	switch asString(entry["type"]) {
	case "vmess":
		n.Protocol = model.ProtocolVMess
		n.VMess = &model.VMess{
			UUID:    asString(entry["uuid"]),
			AlterID: asInt(entry["alterId"]),
			Cipher:  asString(entry["cipher"]),
		}
	case "trojan":
		n.Protocol = model.ProtocolTrojan
		n.Trojan = &model.Trojan{Password: asString(entry["password"])}
		n.TLS.Enabled = true
	case "ss":
		n.Protocol = model.ProtocolShadowsocks
		n.Shadowsocks = &model.Shadowsocks{
			Cipher:   asString(entry["cipher"]),
			Password: asString(entry["password"]),
		}
	case "vless":
		n.Protocol = model.ProtocolVLESS
		n.VLESS = &model.VLESS{
			UUID: asString(entry["uuid"]),
			Flow: asString(entry["flow"]),
		}
	case "hysteria2":
		n.Protocol = model.ProtocolHysteria2
		n.Hysteria2 = &model.Hysteria2{
			Password:     asString(entry["password"]),
			Obfs:         asString(entry["obfs"]),
			ObfsPassword: asString(entry["obfs-password"]),
		}
		n.Transport.Net = "quic"
		n.TLS.Enabled = true
	default:
		n.Protocol = model.ProtocolUnknown
	}
	return n
}

// nodeFromSingBoxEntry lifts one dialect-B outbound into a Node.
func nodeFromSingBoxEntry(entry map[string]any) model.Node {
	n := model.Node{
		Name:   asString(entry["tag"]),
		Server: asString(entry["server"]),
		Port:   asInt(entry["server_port"]),
		Origin: model.OriginSingBox,
		Fields: entry,
	}
	if tls, ok := entry["tls"].(map[string]any); ok {
		n.TLS = model.TLS{
			Enabled:    asBool(tls["enabled"]),
			SNI:        asString(tls["server_name"]),
			SkipVerify: asBool(tls["insecure"]),
		}
	}
	if tr, ok := entry["transport"].(map[string]any); ok {
		n.Transport.Net = asString(tr["type"])
		if n.Transport.Net == "ws" {
			n.Transport.WSPath = asString(tr["path"])
			if headers, ok := tr["headers"].(map[string]any); ok {
				n.Transport.WSHost = firstString(headers["Host"], headers["host"])
			}
		}
	}

	switch model.Protocol(asString(entry["type"])) {
	case model.ProtocolVMess:
		n.Protocol = model.ProtocolVMess
		n.VMess = &model.VMess{
			UUID:    asString(entry["uuid"]),
			AlterID: asInt(entry["alter_id"]),
			Cipher:  asString(entry["security"]),
		}
	case model.ProtocolTrojan:
		n.Protocol = model.ProtocolTrojan
		n.Trojan = &model.Trojan{Password: asString(entry["password"])}
	case model.ProtocolShadowsocks:
		n.Protocol = model.ProtocolShadowsocks
		n.Shadowsocks = &model.Shadowsocks{
			Cipher:   asString(entry["method"]),
			Password: asString(entry["password"]),
		}
	case model.ProtocolVLESS:
		n.Protocol = model.ProtocolVLESS
		n.VLESS = &model.VLESS{
			UUID: asString(entry["uuid"]),
			Flow: asString(entry["flow"]),
		}
	case model.ProtocolHysteria2:
		n.Protocol = model.ProtocolHysteria2
		n.Hysteria2 = &model.Hysteria2{
			Password: asString(entry["password"]),
		}
		n.Transport.Net = "quic"
	default:
		n.Protocol = model.ProtocolUnknown
	}
	return n
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func firstString(vs ...any) string {
	for _, v := range vs {
		if s := asString(v); s != "" {
			return s
		}
	}
	return ""
}

func asInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return i
		}
	}
	return 0
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "1"
	}
	return false
}
