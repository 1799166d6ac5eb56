package model

// Protocol is the closed set of proxy protocols a Node can carry.
type Protocol string

const (
	ProtocolVMess       Protocol = "vmess"
	ProtocolTrojan      Protocol = "trojan"
	ProtocolShadowsocks Protocol = "shadowsocks"
	ProtocolVLESS       Protocol = "vless"
	ProtocolHysteria2   Protocol = "hysteria2"
	ProtocolUnknown     Protocol = "unknown"
)

// Origin records which subscription encoding produced a Node. The link-list
// serializer uses it to decide between regenerating a link and passing the
// original through.
type Origin string

const (
	OriginLink    Origin = "link"
	OriginClash   Origin = "clash"
	OriginSingBox Origin = "singbox"
)

// Transport describes how the proxy connection is carried.
type Transport struct {
	Net    string // "tcp", "ws", "quic", "grpc", ...; empty means tcp
	WSPath string
	WSHost string
}

// TLS holds the TLS layer settings shared by all protocols.
type TLS struct {
	Enabled    bool
	SNI        string
	SkipVerify bool
}

type VMess struct {
	UUID    string
	AlterID int
	Cipher  string
}

type Trojan struct {
	Password string
}

type Shadowsocks struct {
	Cipher   string
	Password string
}

type VLESS struct {
	UUID string
	Flow string
}

type Hysteria2 struct {
	Password     string
	Obfs         string
	ObfsPassword string
}

// Node is the canonical record of one proxy endpoint. Exactly one of the
// per-protocol credential pointers is non-nil when Protocol is known.
type Node struct {
	Name     string
	Protocol Protocol
	Server   string
	Port     int

	VMess       *VMess
	Trojan      *Trojan
	Shadowsocks *Shadowsocks
	VLESS       *VLESS
	Hysteria2   *Hysteria2

	Transport Transport
	TLS       TLS

	Origin Origin

	// Raw is the original link text for link-origin nodes; empty otherwise.
	Raw string

	// Fields carries the verbatim structured entry for clash/singbox-origin
	// nodes so the serializers can round-trip fields this model does not
	// understand. Internal to the pipeline; never rendered as-is without
	// stripping is needed because it contains no private keys by
	// construction (only the source document's own entry).
	Fields map[string]any
}

// Usable reports whether the node carries enough fields to synthesize a
// single-outbound runtime config for at least one core kind. Structured-origin
// nodes are trusted to be self-describing via Fields.
func (n *Node) Usable() bool {
	if n.Server == "" || n.Port <= 0 || n.Port > 65535 {
		return n.Origin != OriginLink && len(n.Fields) > 0
	}
	switch n.Protocol {
	case ProtocolVMess:
		return n.VMess != nil && n.VMess.UUID != ""
	case ProtocolTrojan:
		return n.Trojan != nil && n.Trojan.Password != ""
	case ProtocolShadowsocks:
		return n.Shadowsocks != nil && n.Shadowsocks.Cipher != "" && n.Shadowsocks.Password != ""
	case ProtocolVLESS:
		return n.VLESS != nil && n.VLESS.UUID != ""
	case ProtocolHysteria2:
		return n.Hysteria2 != nil && n.Hysteria2.Password != ""
	default:
		return len(n.Fields) > 0
	}
}

// CoreKind identifies which external proxy-core implementation runs a node.
type CoreKind string

const (
	CoreClash   CoreKind = "clash"
	CoreSingBox CoreKind = "singbox"
)
