package link

import (
	"errors"
	"testing"

	"github.com/subgeo/subgeo/internal/model"
)

// Base64 of:
// {"v":"2","ps":"Tokyo 1","add":"jp.example.com","port":"443","id":"b831381d-6324-4d53-ad4f-8cda48b30811","aid":"0","scy":"auto","net":"ws","path":"/ray","host":"cdn.example.com","tls":"tls"}
const vmessWS = "vmess://eyJ2IjoiMiIsInBzIjoiVG9reW8gMSIsImFkZCI6ImpwLmV4YW1wbGUuY29tIiwicG9ydCI6IjQ0MyIsImlkIjoiYjgzMTM4MWQtNjMyNC00ZDUzLWFkNGYtOGNkYTQ4YjMwODExIiwiYWlkIjoiMCIsInNjeSI6ImF1dG8iLCJuZXQiOiJ3cyIsInBhdGgiOiIvcmF5IiwiaG9zdCI6ImNkbi5leGFtcGxlLmNvbSIsInRscyI6InRscyJ9"

func TestParseVMess_WebsocketTLS(t *testing.T) {
	n, err := ParseVMess(vmessWS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Name != "Tokyo 1" {
		t.Fatalf("name=%q, want %q", n.Name, "Tokyo 1")
	}
	if n.Protocol != model.ProtocolVMess {
		t.Fatalf("protocol=%q, want vmess", n.Protocol)
	}
	if n.Server != "jp.example.com" || n.Port != 443 {
		t.Fatalf("server/port=%q/%d, want jp.example.com/443", n.Server, n.Port)
	}
	if n.VMess == nil || n.VMess.UUID != "b831381d-6324-4d53-ad4f-8cda48b30811" {
		t.Fatalf("uuid wrong: %+v", n.VMess)
	}
	if n.VMess.AlterID != 0 || n.VMess.Cipher != "auto" {
		t.Fatalf("alterId/cipher=%d/%q, want 0/auto", n.VMess.AlterID, n.VMess.Cipher)
	}
	if n.Transport.Net != "ws" || n.Transport.WSPath != "/ray" || n.Transport.WSHost != "cdn.example.com" {
		t.Fatalf("transport wrong: %+v", n.Transport)
	}
	if !n.TLS.Enabled {
		t.Fatalf("tls should be enabled")
	}
	// No explicit sni: fall back to the ws host header.
	if n.TLS.SNI != "cdn.example.com" {
		t.Fatalf("sni=%q, want cdn.example.com", n.TLS.SNI)
	}
	if n.Raw != vmessWS {
		t.Fatalf("raw original link not preserved")
	}
}

func TestParseVMess_Defaults(t *testing.T) {
	// {"add":"1.2.3.4","port":8080,"id":"u"} with numeric port and no ps.
	n, err := ParseVMess("vmess://eyJhZGQiOiIxLjIuMy40IiwicG9ydCI6ODA4MCwiaWQiOiJ1In0=")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Name != "Unnamed VMess" {
		t.Fatalf("name=%q, want default", n.Name)
	}
	if n.Port != 8080 {
		t.Fatalf("port=%d, want 8080", n.Port)
	}
	if n.VMess.Cipher != "auto" || n.VMess.AlterID != 0 {
		t.Fatalf("defaults wrong: %+v", n.VMess)
	}
	if n.TLS.Enabled {
		t.Fatalf("tls should be disabled")
	}
}

func TestParseVMess_Garbage(t *testing.T) {
	_, err := ParseVMess("vmess://%%%not-base64%%%")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("want ParseError, got %v", err)
	}
}

func TestVMess_RoundTrip(t *testing.T) {
	n, err := ParseVMess(vmessWS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n.Name = "[JP] Tokyo 1"

	out, ok := Serialize(&n)
	if !ok {
		t.Fatalf("vmess should support regeneration")
	}
	back, err := ParseVMess(out)
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	if back.Name != "[JP] Tokyo 1" {
		t.Fatalf("name=%q, want relabeled name", back.Name)
	}
	if back.Server != n.Server || back.Port != n.Port || back.VMess.UUID != n.VMess.UUID {
		t.Fatalf("endpoint fields changed in round trip: %+v", back)
	}
	if back.Transport != n.Transport || back.TLS != n.TLS {
		t.Fatalf("transport/tls changed in round trip: %+v vs %+v", back.Transport, back.TLS)
	}
}
