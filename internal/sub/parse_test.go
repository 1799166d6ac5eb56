package sub

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/subgeo/subgeo/internal/model"
)

const clashBody = `
proxies:
  - name: "HK 01"
    type: vmess
    server: hk.example.com
    port: 443
    uuid: 9d0c2800-ff4d-4d22-9f1e-6a29a2f0c6a1
    alterId: 0
    cipher: auto
    network: ws
    tls: true
    servername: hk.example.com
    ws-opts:
      path: /ray
      headers:
        Host: cdn.example.com
  - name: weird
    type: snell
    server: x.example.com
    port: 1234
proxy-groups:
  - name: PROXY
    type: select
    proxies: ["HK 01"]
`

const singBoxBody = `{
  "log": {"level": "warn"},
  "outbounds": [
    {
      "type": "trojan",
      "tag": "SG 01",
      "server": "sg.example.com",
      "server_port": 443,
      "password": "pw",
      "tls": {"enabled": true, "server_name": "sg.example.com", "insecure": true}
    },
    {"type": "direct", "tag": "direct"}
  ]
}`

func TestDetectFormat_OrderedRules(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Format
	}{
		{"clash marker", clashBody, FormatClash},
		{"singbox marker", singBoxBody, FormatSingBox},
		{"encoded blob", base64.StdEncoding.EncodeToString([]byte("trojan://pw@a.example.com:443#x\n")), FormatEncoded},
		{"raw links", "trojan://pw@a.example.com:443#x\nnot a link", FormatRawLinks},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.body); got != tt.want {
			t.Fatalf("%s: DetectFormat=%q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestParse_ClashDocument(t *testing.T) {
	nodes := Parser{}.Parse(clashBody)
	if len(nodes) != 2 {
		t.Fatalf("len=%d, want 2", len(nodes))
	}
	n := nodes[0]
	if n.Name != "HK 01" || n.Protocol != model.ProtocolVMess {
		t.Fatalf("node wrong: %+v", n)
	}
	if n.Origin != model.OriginClash {
		t.Fatalf("origin=%q, want clash", n.Origin)
	}
	if n.Transport.WSPath != "/ray" || n.Transport.WSHost != "cdn.example.com" {
		t.Fatalf("ws opts wrong: %+v", n.Transport)
	}
	if !n.TLS.Enabled || n.TLS.SNI != "hk.example.com" {
		t.Fatalf("tls wrong: %+v", n.TLS)
	}
	if n.Fields["server"] != "hk.example.com" {
		t.Fatalf("verbatim fields not kept: %+v", n.Fields)
	}
	// Unrecognized proxy type is carried through as unknown, not dropped.
	if nodes[1].Protocol != model.ProtocolUnknown {
		t.Fatalf("protocol=%q, want unknown", nodes[1].Protocol)
	}
}

func TestParse_SingBoxDocument(t *testing.T) {
	nodes := Parser{}.Parse(singBoxBody)
	if len(nodes) != 1 {
		t.Fatalf("len=%d, want 1 (direct outbound must be ignored)", len(nodes))
	}
	n := nodes[0]
	if n.Name != "SG 01" || n.Protocol != model.ProtocolTrojan || n.Port != 443 {
		t.Fatalf("node wrong: %+v", n)
	}
	if n.Origin != model.OriginSingBox {
		t.Fatalf("origin=%q, want singbox", n.Origin)
	}
	if !n.TLS.Enabled || !n.TLS.SkipVerify {
		t.Fatalf("tls wrong: %+v", n.TLS)
	}
}

func TestParse_EncodedLinkList(t *testing.T) {
	raw := strings.Join([]string{
		"trojan://pw@a.example.com:443#A",
		"",
		"unsupported://x",
		"trojan://pw@b.example.com:443#B",
	}, "\n")
	body := base64.StdEncoding.EncodeToString([]byte(raw))

	nodes := Parser{}.Parse(body)
	if len(nodes) != 2 {
		t.Fatalf("len=%d, want 2 (bad line dropped silently)", len(nodes))
	}
	if nodes[0].Name != "A" || nodes[1].Name != "B" {
		t.Fatalf("names wrong: %q %q", nodes[0].Name, nodes[1].Name)
	}
}

func TestParse_RawLinkFallback(t *testing.T) {
	body := "trojan://pw@a.example.com:443#A\njunk line\n"
	nodes := Parser{}.Parse(body)
	if len(nodes) != 1 {
		t.Fatalf("len=%d, want 1", len(nodes))
	}
}

func TestParse_GarbageYieldsZeroNodes(t *testing.T) {
	if nodes := (Parser{}).Parse("this is not a subscription at all!!"); len(nodes) != 0 {
		t.Fatalf("len=%d, want 0", len(nodes))
	}
}

func TestParse_MalformedClashDocument(t *testing.T) {
	body := "proxies:\n  - name: [unclosed\nproxy-groups:\n"
	if nodes := (Parser{}).Parse(body); len(nodes) != 0 {
		t.Fatalf("malformed document must produce zero nodes, got %d", len(nodes))
	}
}
