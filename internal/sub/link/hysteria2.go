package link

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/subgeo/subgeo/internal/model"
)

// ParseHysteria2 handles hysteria2://auth@host:port?sni=..&insecure=1#name
// and the hy2:// alias.
func ParseHysteria2(line string) (model.Node, error) {
	normalized := line
	if strings.HasPrefix(normalized, "hy2://") {
		normalized = "hysteria2://" + strings.TrimPrefix(normalized, "hy2://")
	}

	u, err := url.Parse(normalized)
	if err != nil {
		return model.Node{}, newParseError(line, "LINK_PARSE_ERROR", "hysteria2 链接解析失败", "", err)
	}
	if u.User == nil || u.User.Username() == "" {
		return model.Node{}, newParseError(line, "LINK_PARSE_ERROR", "hysteria2 链接缺少认证密码", "", nil)
	}

	host := u.Hostname()
	port, err := strconv.Atoi(u.Port())
	if err != nil || host == "" || port < 1 || port > 65535 {
		return model.Node{}, newParseError(line, "LINK_PARSE_ERROR", "hysteria2 服务器地址或端口不合法", "", err)
	}

	q := u.Query()
	hostPort := net.JoinHostPort(host, u.Port())

	return model.Node{
		Name:     decodeFragmentName(u.EscapedFragment(), hostPort),
		Protocol: model.ProtocolHysteria2,
		Server:   host,
		Port:     port,
		Hysteria2: &model.Hysteria2{
			Password:     u.User.Username(),
			Obfs:         q.Get("obfs"),
			ObfsPassword: q.Get("obfs-password"),
		},
		Transport: model.Transport{Net: "quic"},
		TLS: model.TLS{
			Enabled:    true, // hysteria2 is QUIC/TLS by definition
			SNI:        defaultString(q.Get("sni"), host),
			SkipVerify: q.Get("insecure") == "1",
		},
		Origin: model.OriginLink,
		Raw:    line,
	}, nil
}

func serializeHysteria2(n *model.Node) string {
	q := url.Values{}
	if n.TLS.SNI != "" {
		q.Set("sni", n.TLS.SNI)
	}
	if n.TLS.SkipVerify {
		q.Set("insecure", "1")
	}
	if n.Hysteria2.Obfs != "" {
		q.Set("obfs", n.Hysteria2.Obfs)
		q.Set("obfs-password", n.Hysteria2.ObfsPassword)
	}

	link := "hysteria2://" + n.Hysteria2.Password + "@" + net.JoinHostPort(n.Server, strconv.Itoa(n.Port))
	if enc := q.Encode(); enc != "" {
		link += "?" + enc
	}
	return link + "#" + url.PathEscape(n.Name)
}
