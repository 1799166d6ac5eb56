package render

import (
	"gopkg.in/yaml.v3"

	"github.com/subgeo/subgeo/internal/model"
	"github.com/subgeo/subgeo/internal/synth"
)

const (
	autoGroupName   = "自动选择"
	manualGroupName = "手动选择"
	placeholderName = "NO-NODES-VALID"
	latencyTestURL  = "http://www.gstatic.com/generate_204"
)

type clashGroup struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Proxies  []string `yaml:"proxies"`
	URL      string   `yaml:"url,omitempty"`
	Interval int      `yaml:"interval,omitempty"`
}

type clashSubscription struct {
	Proxies []map[string]any `yaml:"proxies"`
	Groups  []clashGroup     `yaml:"proxy-groups"`
	Rules   []string         `yaml:"rules"`
}

// renderClash emits a usable clash subscription: every renderable node, an
// automatic latency group, a manual group, and a minimal rule set. Nodes the
// clash schema cannot express are left out rather than failing the document.
func renderClash(outcomes []model.Outcome) ([]byte, error) {
	var proxies []map[string]any
	var names []string
	for _, o := range outcomes {
		entry, err := synth.ClashProxy(o.Node)
		if err != nil {
			continue
		}
		proxies = append(proxies, entry)
		names = append(names, o.Node.Name)
	}

	if len(proxies) == 0 {
		proxies = []map[string]any{{"name": placeholderName, "type": "direct"}}
		names = []string{placeholderName}
	}

	doc := clashSubscription{
		Proxies: proxies,
		Groups: []clashGroup{
			{
				Name:     autoGroupName,
				Type:     "url-test",
				Proxies:  names,
				URL:      latencyTestURL,
				Interval: 300,
			},
			{
				Name:    manualGroupName,
				Type:    "select",
				Proxies: append([]string{autoGroupName}, names...),
			},
		},
		Rules: []string{
			"DOMAIN-SUFFIX,google.com," + autoGroupName,
			"MATCH," + manualGroupName,
		},
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, &RenderError{
			AppError: model.AppError{
				Code:    "RENDER_FAILED",
				Message: "clash 订阅生成失败",
				Stage:   "render",
			},
			Cause: err,
		}
	}
	return out, nil
}
