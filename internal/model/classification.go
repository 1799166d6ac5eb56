package model

import "strings"

// ClassKind enumerates probe outcomes. A country result carries the ISO
// alpha-2 code next to it; every other kind is a sentinel.
type ClassKind int

const (
	ClassCountry ClassKind = iota
	ClassUnknown
	ClassTimeout
	ClassNetworkError
	ClassCoreMissing
	ClassCoreCrashed
	ClassSkipped
	ClassInternalError
)

// Classification is the closed outcome of testing one node. It stays
// structured until the final rendering step turns it into a name prefix.
type Classification struct {
	Kind    ClassKind
	Country string // upper-case alpha-2; set only when Kind == ClassCountry
}

var (
	Unknown       = Classification{Kind: ClassUnknown}
	Timeout       = Classification{Kind: ClassTimeout}
	NetworkError  = Classification{Kind: ClassNetworkError}
	CoreMissing   = Classification{Kind: ClassCoreMissing}
	CoreCrashed   = Classification{Kind: ClassCoreCrashed}
	Skipped       = Classification{Kind: ClassSkipped}
	InternalError = Classification{Kind: ClassInternalError}
)

// Country builds a country classification from a raw geolocation response
// value. Anything that does not normalize to two ASCII letters degrades to
// Unknown rather than leaking garbage into node names.
func Country(code string) Classification {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 || code[0] < 'A' || code[0] > 'Z' || code[1] < 'A' || code[1] > 'Z' {
		return Unknown
	}
	return Classification{Kind: ClassCountry, Country: code}
}

// Reached reports whether the probe got an answer out of the endpoint.
// Unknown counts: the lookup succeeded, the response just carried no code.
func (c Classification) Reached() bool {
	return c.Kind == ClassCountry || c.Kind == ClassUnknown
}

func (c Classification) Label() string {
	switch c.Kind {
	case ClassCountry:
		return c.Country
	case ClassTimeout:
		return "timeout"
	case ClassNetworkError:
		return "network-error"
	case ClassCoreMissing:
		return "core-missing"
	case ClassCoreCrashed:
		return "core-crashed"
	case ClassSkipped:
		return "skipped"
	case ClassInternalError:
		return "internal-error"
	default:
		return "unknown"
	}
}

// Outcome pairs one probed node with its classification. The original name is
// captured at construction so applying the outcome more than once can never
// stack prefixes.
type Outcome struct {
	Class Classification
	Node  *Node

	originalName string
}

func NewOutcome(node *Node, class Classification) Outcome {
	return Outcome{Class: class, Node: node, originalName: node.Name}
}

// LabeledName is "[<classification>] <original name>".
func (o Outcome) LabeledName() string {
	return "[" + o.Class.Label() + "] " + o.originalName
}

// Apply rewrites the node's display name. Idempotent.
func (o Outcome) Apply() {
	o.Node.Name = o.LabeledName()
}
