package synth

import "github.com/subgeo/subgeo/internal/model"

// ClashProxy renders a node as a dialect-A proxy entry. Nodes parsed from a
// clash document reuse their verbatim fields (with the possibly-relabeled
// name) so keys this model does not understand survive the round trip.
func ClashProxy(n *model.Node) (map[string]any, error) {
	if n.Origin == model.OriginClash && len(n.Fields) > 0 {
		entry := make(map[string]any, len(n.Fields))
		for k, v := range n.Fields {
			entry[k] = v
		}
		entry["name"] = n.Name
		return entry, nil
	}

	entry := map[string]any{
		"name":   n.Name,
		"server": n.Server,
		"port":   n.Port,
	}
	switch n.Protocol {
	case model.ProtocolVMess:
		if n.VMess == nil {
			return nil, synthErr(n, "vmess 节点缺少凭据字段", nil)
		}
		entry["type"] = "vmess"
		entry["uuid"] = n.VMess.UUID
		entry["alterId"] = n.VMess.AlterID
		entry["cipher"] = n.VMess.Cipher
		if n.Transport.Net != "" {
			entry["network"] = n.Transport.Net
		}
		if n.Transport.Net == "ws" {
			ws := map[string]any{"path": n.Transport.WSPath}
			if n.Transport.WSHost != "" {
				ws["headers"] = map[string]any{"Host": n.Transport.WSHost}
			}
			entry["ws-opts"] = ws
		}
	case model.ProtocolTrojan:
		if n.Trojan == nil {
			return nil, synthErr(n, "trojan 节点缺少密码字段", nil)
		}
		entry["type"] = "trojan"
		entry["password"] = n.Trojan.Password
	case model.ProtocolShadowsocks:
		if n.Shadowsocks == nil {
			return nil, synthErr(n, "shadowsocks 节点缺少凭据字段", nil)
		}
		entry["type"] = "ss"
		entry["cipher"] = n.Shadowsocks.Cipher
		entry["password"] = n.Shadowsocks.Password
	case model.ProtocolVLESS:
		if n.VLESS == nil {
			return nil, synthErr(n, "vless 节点缺少凭据字段", nil)
		}
		entry["type"] = "vless"
		entry["uuid"] = n.VLESS.UUID
		if n.VLESS.Flow != "" {
			entry["flow"] = n.VLESS.Flow
		}
		if n.Transport.Net != "" {
			entry["network"] = n.Transport.Net
		}
		if n.Transport.Net == "ws" {
			ws := map[string]any{"path": n.Transport.WSPath}
			if n.Transport.WSHost != "" {
				ws["headers"] = map[string]any{"Host": n.Transport.WSHost}
			}
			entry["ws-opts"] = ws
		}
	case model.ProtocolHysteria2:
		if n.Hysteria2 == nil {
			return nil, synthErr(n, "hysteria2 节点缺少密码字段", nil)
		}
		entry["type"] = "hysteria2"
		entry["password"] = n.Hysteria2.Password
		if n.Hysteria2.Obfs != "" {
			entry["obfs"] = n.Hysteria2.Obfs
			entry["obfs-password"] = n.Hysteria2.ObfsPassword
		}
	default:
		return nil, synthErr(n, "节点协议无法映射为 clash 配置", nil)
	}

	if n.TLS.Enabled && n.Protocol != model.ProtocolTrojan && n.Protocol != model.ProtocolHysteria2 {
		entry["tls"] = true
	}
	if n.TLS.SNI != "" {
		// Clash spells the field differently per protocol family.
		if n.Protocol == model.ProtocolTrojan || n.Protocol == model.ProtocolHysteria2 {
			entry["sni"] = n.TLS.SNI
		} else if n.TLS.Enabled {
			entry["servername"] = n.TLS.SNI
		}
	}
	if n.TLS.SkipVerify {
		entry["skip-cert-verify"] = true
	}
	return entry, nil
}

// SingBoxOutbound renders a node as a dialect-B outbound. The caller owns the
// "tag" key. Nodes parsed from a sing-box document reuse their verbatim
// fields.
func SingBoxOutbound(n *model.Node) (map[string]any, error) {
	if n.Origin == model.OriginSingBox && len(n.Fields) > 0 {
		entry := make(map[string]any, len(n.Fields))
		for k, v := range n.Fields {
			entry[k] = v
		}
		entry["tag"] = n.Name
		return entry, nil
	}

	entry := map[string]any{
		"tag":         n.Name,
		"server":      n.Server,
		"server_port": n.Port,
	}
	switch n.Protocol {
	case model.ProtocolVMess:
		if n.VMess == nil {
			return nil, synthErr(n, "vmess 节点缺少凭据字段", nil)
		}
		entry["type"] = "vmess"
		entry["uuid"] = n.VMess.UUID
		entry["alter_id"] = n.VMess.AlterID
		entry["security"] = n.VMess.Cipher
	case model.ProtocolTrojan:
		if n.Trojan == nil {
			return nil, synthErr(n, "trojan 节点缺少密码字段", nil)
		}
		entry["type"] = "trojan"
		entry["password"] = n.Trojan.Password
	case model.ProtocolShadowsocks:
		if n.Shadowsocks == nil {
			return nil, synthErr(n, "shadowsocks 节点缺少凭据字段", nil)
		}
		entry["type"] = "shadowsocks"
		entry["method"] = n.Shadowsocks.Cipher
		entry["password"] = n.Shadowsocks.Password
	case model.ProtocolVLESS:
		if n.VLESS == nil {
			return nil, synthErr(n, "vless 节点缺少凭据字段", nil)
		}
		entry["type"] = "vless"
		entry["uuid"] = n.VLESS.UUID
		if n.VLESS.Flow != "" {
			entry["flow"] = n.VLESS.Flow
		}
	case model.ProtocolHysteria2:
		if n.Hysteria2 == nil {
			return nil, synthErr(n, "hysteria2 节点缺少密码字段", nil)
		}
		entry["type"] = "hysteria2"
		entry["password"] = n.Hysteria2.Password
		if n.Hysteria2.Obfs != "" {
			entry["obfs"] = map[string]any{
				"type":     n.Hysteria2.Obfs,
				"password": n.Hysteria2.ObfsPassword,
			}
		}
	default:
		return nil, synthErr(n, "节点协议无法映射为 sing-box 配置", nil)
	}

	tlsRequired := n.Protocol == model.ProtocolTrojan || n.Protocol == model.ProtocolHysteria2
	if n.TLS.Enabled || tlsRequired {
		tls := map[string]any{"enabled": true}
		if n.TLS.SNI != "" {
			tls["server_name"] = n.TLS.SNI
		}
		if n.TLS.SkipVerify {
			tls["insecure"] = true
		}
		entry["tls"] = tls
	}
	if n.Transport.Net == "ws" {
		tr := map[string]any{"type": "ws", "path": n.Transport.WSPath}
		if n.Transport.WSHost != "" {
			tr["headers"] = map[string]any{"Host": n.Transport.WSHost}
		}
		entry["transport"] = tr
	}
	return entry, nil
}
