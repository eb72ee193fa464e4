package coordinator

import (
	"sort"
	"strings"
)

// IntentRoute is route_intent's answer: where a free-text wish should land.
type IntentRoute struct {
	PrimaryPort  string      `json:"primary_port"`
	Confidence   float64     `json:"confidence"`
	Alternatives []PortScore `json:"alternatives,omitempty"`
}

// PortScore pairs a port with its keyword score.
type PortScore struct {
	Port  string  `json:"port"`
	Score float64 `json:"score"`
}

// intentKeywords maps lowercase intent vocabulary to ports. Substring hits
// score 1, exact word matches score 2.
var intentKeywords = map[string]string{
	"observe": "P0", "watch": "P0", "monitor": "P0", "scan": "P0",
	"sense": "P0", "telemetry": "P0", "log": "P0",

	"bridge": "P1", "connect": "P1", "relay": "P1", "translate": "P1",
	"sync": "P1", "integrate": "P1",

	"shape": "P2", "build": "P2", "code": "P2", "implement": "P2",
	"refactor": "P2", "write": "P2", "create": "P2",

	"inject": "P3", "deploy": "P3", "publish": "P3", "release": "P3",
	"deliver": "P3", "ship": "P3",

	"disrupt": "P4", "attack": "P4", "break": "P4", "fuzz": "P4",
	"adversarial": "P4", "red": "P4", "probe": "P4",

	"immunize": "P5", "defend": "P5", "protect": "P5", "harden": "P5",
	"audit": "P5", "verify": "P5", "secure": "P5",

	"assimilate": "P6", "learn": "P6", "embed": "P6", "index": "P6",
	"summarize": "P6", "enrich": "P6", "digest": "P6",

	"navigate": "P7", "plan": "P7", "decide": "P7", "strategy": "P7",
	"route": "P7", "prioritize": "P7", "wish": "P7",
}

// RouteIntent maps free text to a port by keyword scoring. No keyword at
// all falls through to P7 at low confidence; planning is the safe default.
func RouteIntent(text string) IntentRoute {
	lower := strings.ToLower(text)
	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		words[w] = true
	}

	scores := map[string]float64{}
	for keyword, port := range intentKeywords {
		if !strings.Contains(lower, keyword) {
			continue
		}
		scores[port]++
		if words[keyword] {
			scores[port]++
		}
	}

	if len(scores) == 0 {
		return IntentRoute{PrimaryPort: "P7", Confidence: 0.3}
	}

	ranked := make([]PortScore, 0, len(scores))
	total := 0.0
	for port, score := range scores {
		ranked = append(ranked, PortScore{Port: port, Score: score})
		total += score
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Port < ranked[j].Port
	})

	route := IntentRoute{
		PrimaryPort: ranked[0].Port,
		Confidence:  ranked[0].Score / total,
	}
	if len(ranked) > 1 {
		route.Alternatives = ranked[1:]
		if len(route.Alternatives) > 3 {
			route.Alternatives = route.Alternatives[:3]
		}
	}
	return route
}
