package render

import (
	"encoding/json"

	"github.com/subgeo/subgeo/internal/model"
	"github.com/subgeo/subgeo/internal/synth"
)

const directTag = "DIRECT"

type singBoxLog struct {
	Level     string `json:"level"`
	Timestamp bool   `json:"timestamp"`
}

type singBoxDNSServer struct {
	Address string `json:"address"`
}

type singBoxDNS struct {
	Servers []singBoxDNSServer `json:"servers"`
}

type singBoxInbound struct {
	Type       string `json:"type"`
	Tag        string `json:"tag"`
	Listen     string `json:"listen"`
	ListenPort int    `json:"listen_port"`
}

type singBoxRouteRule struct {
	Outbound string `json:"outbound"`
}

type singBoxRoute struct {
	Rules []singBoxRouteRule `json:"rules"`
	Final string             `json:"final"`
}

type singBoxSubscription struct {
	Log       singBoxLog       `json:"log"`
	DNS       singBoxDNS       `json:"dns"`
	Inbounds  []singBoxInbound `json:"inbounds"`
	Outbounds []map[string]any `json:"outbounds"`
	Route     singBoxRoute     `json:"route"`
}

// renderSingBox emits a complete sing-box config: one mixed listener, every
// renderable node as an outbound tagged with its classified name, a mandatory
// direct outbound, and a route that lands on the first surviving node.
func renderSingBox(outcomes []model.Outcome) ([]byte, error) {
	var outbounds []map[string]any
	for _, o := range outcomes {
		entry, err := synth.SingBoxOutbound(o.Node)
		if err != nil {
			continue
		}
		outbounds = append(outbounds, entry)
	}

	doc := singBoxSubscription{
		Log: singBoxLog{Level: "info", Timestamp: true},
		DNS: singBoxDNS{Servers: []singBoxDNSServer{
			{Address: "8.8.8.8"},
			{Address: "1.1.1.1"},
		}},
		Inbounds: []singBoxInbound{
			{Type: "mixed", Tag: "mixed-in", Listen: "::", ListenPort: 2080},
		},
		Route: singBoxRoute{Rules: []singBoxRouteRule{}, Final: directTag},
	}

	if len(outbounds) == 0 {
		doc.Outbounds = []map[string]any{{"type": "direct", "tag": directTag}}
	} else {
		first, _ := outbounds[0]["tag"].(string)
		doc.Outbounds = append(outbounds, map[string]any{"type": "direct", "tag": directTag})
		doc.Route.Rules = []singBoxRouteRule{{Outbound: first}}
		doc.Route.Final = first
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, &RenderError{
			AppError: model.AppError{
				Code:    "RENDER_FAILED",
				Message: "sing-box 订阅生成失败",
				Stage:   "render",
			},
			Cause: err,
		}
	}
	return out, nil
}
