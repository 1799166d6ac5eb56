// Package synth builds the minimal single-node runtime configuration an
// external proxy core needs for one probe: one local inbound, one outbound
// built from the node, and a catch-all route to that outbound.
package synth

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/subgeo/subgeo/internal/model"
)

// Ports are the local listener ports allocated for one probe. Clash separates
// HTTP and SOCKS listeners; sing-box serves both from one mixed inbound on
// the HTTP port.
type Ports struct {
	HTTP  int
	SOCKS int
}

type SynthError struct {
	AppError model.AppError
	Cause    error
}

func (e *SynthError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *SynthError) Unwrap() error { return e.Cause }

// Synthesize produces the runtime config document for the given core kind and
// the local proxy listen address the probe should dial.
func Synthesize(n *model.Node, kind model.CoreKind, ports Ports) (config []byte, listenAddr string, err error) {
	listenAddr = "127.0.0.1:" + strconv.Itoa(ports.HTTP)
	switch kind {
	case model.CoreClash:
		config, err = synthesizeClash(n, ports)
	case model.CoreSingBox:
		config, err = synthesizeSingBox(n, ports)
	default:
		err = synthErr(n, fmt.Sprintf("未知的核心类型：%s", kind), nil)
	}
	if err != nil {
		return nil, "", err
	}
	return config, listenAddr, nil
}

type clashRuntime struct {
	Port        int              `yaml:"port"`
	SocksPort   int              `yaml:"socks-port"`
	AllowLan    bool             `yaml:"allow-lan"`
	Mode        string           `yaml:"mode"`
	LogLevel    string           `yaml:"log-level"`
	Proxies     []map[string]any `yaml:"proxies"`
	ProxyGroups []map[string]any `yaml:"proxy-groups"`
	Rules       []string         `yaml:"rules"`
}

func synthesizeClash(n *model.Node, ports Ports) ([]byte, error) {
	proxy, err := ClashProxy(n)
	if err != nil {
		return nil, err
	}
	doc := clashRuntime{
		Port:      ports.HTTP,
		SocksPort: ports.SOCKS,
		AllowLan:  false,
		Mode:      "global",
		LogLevel:  "silent",
		Proxies:   []map[string]any{proxy},
		ProxyGroups: []map[string]any{{
			"name":    "GLOBAL",
			"type":    "select",
			"proxies": []string{n.Name},
		}},
		// Unconditional match; no rule evaluation happens during a probe.
		Rules: []string{"MATCH,GLOBAL"},
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, synthErr(n, "clash 运行时配置编码失败", err)
	}
	return out, nil
}

type singBoxRuntime struct {
	Log       map[string]any   `json:"log"`
	Inbounds  []map[string]any `json:"inbounds"`
	Outbounds []map[string]any `json:"outbounds"`
	Route     map[string]any   `json:"route"`
}

func synthesizeSingBox(n *model.Node, ports Ports) ([]byte, error) {
	outbound, err := SingBoxOutbound(n)
	if err != nil {
		return nil, err
	}
	outbound["tag"] = "proxy"

	doc := singBoxRuntime{
		Log: map[string]any{"level": "warn", "output": "stderr"},
		Inbounds: []map[string]any{{
			"type":        "mixed",
			"tag":         "mixed-in",
			"listen":      "127.0.0.1",
			"listen_port": ports.HTTP,
		}},
		Outbounds: []map[string]any{
			outbound,
			{"type": "direct", "tag": "direct"},
		},
		Route: map[string]any{
			"final": "proxy",
		},
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, synthErr(n, "sing-box 运行时配置编码失败", err)
	}
	return out, nil
}

func synthErr(n *model.Node, message string, cause error) error {
	return &SynthError{
		AppError: model.AppError{
			Code:    "SYNTH_ERROR",
			Message: message,
			Stage:   "synth",
			Node:    n.Name,
		},
		Cause: cause,
	}
}
