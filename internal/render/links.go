package render

import (
	"encoding/base64"
	"strings"

	"github.com/subgeo/subgeo/internal/model"
	"github.com/subgeo/subgeo/internal/sub/link"
)

// renderLinkList emits the base64 share-link subscription. A node whose probe
// reached the endpoint is regenerated so the link carries its classified
// name; otherwise the original link is passed through untouched. Nodes with
// neither a regenerable scheme nor an original link are left out.
func renderLinkList(outcomes []model.Outcome) ([]byte, error) {
	var links []string
	for _, o := range outcomes {
		n := o.Node
		if n.Raw != "" && !o.Class.Reached() {
			links = append(links, n.Raw)
			continue
		}
		if l, ok := link.Serialize(n); ok {
			links = append(links, l)
			continue
		}
		if n.Raw != "" {
			links = append(links, n.Raw)
		}
	}

	blob := strings.Join(links, "\n")
	out := base64.StdEncoding.EncodeToString([]byte(blob))
	return []byte(out), nil
}
