package link

import (
	"net"
	"net/url"
	"strconv"

	"github.com/subgeo/subgeo/internal/model"
)

// ParseTrojan handles trojan://password@host:port?sni=..&allowInsecure=0#remark.
func ParseTrojan(line string) (model.Node, error) {
	u, err := url.Parse(line)
	if err != nil {
		return model.Node{}, newParseError(line, "LINK_PARSE_ERROR", "trojan 链接解析失败", "", err)
	}
	if u.User == nil || u.User.Username() == "" {
		return model.Node{}, newParseError(line, "LINK_PARSE_ERROR", "trojan 链接缺少密码", "", nil)
	}

	host := u.Hostname()
	port, err := strconv.Atoi(u.Port())
	if err != nil || host == "" || port < 1 || port > 65535 {
		return model.Node{}, newParseError(line, "LINK_PARSE_ERROR", "trojan 服务器地址或端口不合法", "", err)
	}

	q := u.Query()
	hostPort := net.JoinHostPort(host, u.Port())

	n := model.Node{
		Name:     decodeFragmentName(u.EscapedFragment(), hostPort),
		Protocol: model.ProtocolTrojan,
		Server:   host,
		Port:     port,
		Trojan:   &model.Trojan{Password: u.User.Username()},
		TLS: model.TLS{
			Enabled:    true, // trojan is TLS by definition
			SNI:        defaultString(q.Get("sni"), host),
			SkipVerify: q.Get("allowInsecure") == "1",
		},
		Origin: model.OriginLink,
		Raw:    line,
	}
	return n, nil
}

func serializeTrojan(n *model.Node) string {
	q := url.Values{}
	if n.TLS.SNI != "" {
		q.Set("sni", n.TLS.SNI)
	}
	if n.TLS.SkipVerify {
		q.Set("allowInsecure", "1")
	}

	link := "trojan://" + n.Trojan.Password + "@" + net.JoinHostPort(n.Server, strconv.Itoa(n.Port))
	if enc := q.Encode(); enc != "" {
		link += "?" + enc
	}
	return link + "#" + url.PathEscape(n.Name)
}
