package link

import (
	"encoding/base64"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/subgeo/subgeo/internal/model"
)

// ParseShadowsocks accepts both SIP002 (ss://b64(method:password)@host:port)
// and the legacy whole-payload form (ss://b64(method:password@host:port)),
// each with an optional #name fragment.
func ParseShadowsocks(line string) (model.Node, error) {
	rest := strings.TrimPrefix(line, "ss://")
	rest, frag, _ := strings.Cut(rest, "#")
	// Plugin query parameters are not runtime-config material here; strip them.
	rest, _, _ = strings.Cut(rest, "?")
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" {
		return model.Node{}, newParseError(line, "LINK_PARSE_ERROR", "ss:// 后缺少内容", "", nil)
	}

	var userinfo, hostPort string
	if user, host, ok := strings.Cut(rest, "@"); ok {
		decoded, err := decodeB64ToString(user)
		if err != nil {
			return model.Node{}, newParseError(line, "LINK_PARSE_ERROR", "ss userinfo base64 解码失败", "", err)
		}
		userinfo, hostPort = decoded, host
	} else {
		decoded, err := decodeB64ToString(rest)
		if err != nil {
			return model.Node{}, newParseError(line, "LINK_PARSE_ERROR", "ss base64 解码失败", "", err)
		}
		at := strings.LastIndex(decoded, "@")
		if at < 0 {
			return model.Node{}, newParseError(line, "LINK_PARSE_ERROR", "ss 解码结果缺少 @ 分隔符", "", nil)
		}
		userinfo, hostPort = decoded[:at], decoded[at+1:]
	}

	method, password, ok := strings.Cut(userinfo, ":")
	method = strings.TrimSpace(method)
	password = strings.TrimSpace(password)
	if !ok || method == "" || password == "" {
		return model.Node{}, newParseError(line, "LINK_PARSE_ERROR", "ss 缺少 cipher:password", "", nil)
	}

	server, port, err := parseHostPort(hostPort)
	if err != nil {
		return model.Node{}, newParseError(line, "LINK_PARSE_ERROR", "ss 服务器地址或端口不合法", "", err)
	}

	return model.Node{
		Name:        decodeFragmentName(frag, hostPort),
		Protocol:    model.ProtocolShadowsocks,
		Server:      server,
		Port:        port,
		Shadowsocks: &model.Shadowsocks{Cipher: method, Password: password},
		Origin:      model.OriginLink,
		Raw:         line,
	}, nil
}

func serializeShadowsocks(n *model.Node) string {
	userinfo := base64.URLEncoding.EncodeToString([]byte(n.Shadowsocks.Cipher + ":" + n.Shadowsocks.Password))
	return "ss://" + userinfo + "@" + net.JoinHostPort(n.Server, strconv.Itoa(n.Port)) + "#" + url.PathEscape(n.Name)
}
