package link

import (
	"net"
	"net/url"
	"strconv"

	"github.com/subgeo/subgeo/internal/model"
)

// ParseVLESS handles vless://uuid@host:port?type=ws&security=tls&sni=..#name.
func ParseVLESS(line string) (model.Node, error) {
	u, err := url.Parse(line)
	if err != nil {
		return model.Node{}, newParseError(line, "LINK_PARSE_ERROR", "vless 链接解析失败", "", err)
	}
	if u.User == nil || u.User.Username() == "" {
		return model.Node{}, newParseError(line, "LINK_PARSE_ERROR", "vless 链接缺少 uuid", "", nil)
	}

	host := u.Hostname()
	port, err := strconv.Atoi(u.Port())
	if err != nil || host == "" || port < 1 || port > 65535 {
		return model.Node{}, newParseError(line, "LINK_PARSE_ERROR", "vless 服务器地址或端口不合法", "", err)
	}

	q := u.Query()
	hostPort := net.JoinHostPort(host, u.Port())

	n := model.Node{
		Name:     decodeFragmentName(u.EscapedFragment(), hostPort),
		Protocol: model.ProtocolVLESS,
		Server:   host,
		Port:     port,
		VLESS:    &model.VLESS{UUID: u.User.Username(), Flow: q.Get("flow")},
		Transport: model.Transport{
			Net: defaultString(q.Get("type"), "tcp"),
		},
		Origin: model.OriginLink,
		Raw:    line,
	}
	if n.Transport.Net == "ws" {
		n.Transport.WSPath = defaultString(q.Get("path"), "/")
		n.Transport.WSHost = q.Get("host")
	}
	switch q.Get("security") {
	case "tls", "reality":
		n.TLS.Enabled = true
		n.TLS.SNI = defaultString(q.Get("sni"), host)
		n.TLS.SkipVerify = q.Get("allowInsecure") == "1"
	}
	return n, nil
}

func serializeVLESS(n *model.Node) string {
	q := url.Values{}
	q.Set("type", defaultString(n.Transport.Net, "tcp"))
	if n.VLESS.Flow != "" {
		q.Set("flow", n.VLESS.Flow)
	}
	if n.Transport.Net == "ws" {
		q.Set("path", n.Transport.WSPath)
		if n.Transport.WSHost != "" {
			q.Set("host", n.Transport.WSHost)
		}
	}
	if n.TLS.Enabled {
		q.Set("security", "tls")
		if n.TLS.SNI != "" {
			q.Set("sni", n.TLS.SNI)
		}
		if n.TLS.SkipVerify {
			q.Set("allowInsecure", "1")
		}
	}
	return "vless://" + n.VLESS.UUID + "@" + net.JoinHostPort(n.Server, strconv.Itoa(n.Port)) +
		"?" + q.Encode() + "#" + url.PathEscape(n.Name)
}
