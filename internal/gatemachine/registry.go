package gatemachine

import (
	"regexp"
)

// AgentInfo describes a registered session agent: which ports it serves and
// which gates it may pass.
type AgentInfo struct {
	DisplayName string
	Ports       []string
	Gates       []string
}

// staticAgents is the fixed registry. Deny-by-default: an agent neither
// listed here nor matching a dynamic pattern is GATE_BLOCKED at every tile.
var staticAgents = map[string]AgentInfo{
	"operator": {
		DisplayName: "Operator",
		Ports:       []string{"P0", "P1", "P2", "P3", "P4", "P5", "P6", "P7"},
		Gates:       []string{"*"},
	},
	"embedding_worker": {
		DisplayName: "Embedding Worker",
		Ports:       []string{"P6"},
		Gates:       []string{"*"},
	},
}

// dynamicAgentPattern auto-registers fleet-shaped agent ids with broad
// permissions: P<digit>-prefixed commanders, swarm workers, and generic
// agents.
var dynamicAgentPattern = regexp.MustCompile(`^(?i:p[0-7])[_-]|^swarm_|^agent_`)

// ResolveAgent returns the agent's registration, auto-registering dynamic
// ids. ok is false for unknown agents.
func ResolveAgent(agentID string) (AgentInfo, bool) {
	if info, ok := staticAgents[agentID]; ok {
		return info, ok
	}
	if dynamicAgentPattern.MatchString(agentID) {
		return AgentInfo{
			DisplayName: agentID,
			Ports:       portsForDynamic(agentID),
			Gates:       []string{"*"},
		}, true
	}
	return AgentInfo{}, false
}

// portsForDynamic infers the primary port from a P<digit> prefix, defaulting
// to all ports for swarm_/agent_ ids.
func portsForDynamic(agentID string) []string {
	if len(agentID) >= 2 && (agentID[0] == 'p' || agentID[0] == 'P') &&
		agentID[1] >= '0' && agentID[1] <= '7' {
		return []string{"P" + string(agentID[1])}
	}
	return []string{"P0", "P1", "P2", "P3", "P4", "P5", "P6", "P7"}
}

// allowsGate reports whether the agent may pass the named gate.
func (a AgentInfo) allowsGate(gate string) bool {
	for _, g := range a.Gates {
		if g == "*" || g == gate {
			return true
		}
	}
	return false
}

// primaryPort returns the agent's first port, used to tag its session
// events.
func (a AgentInfo) primaryPort() string {
	if len(a.Ports) > 0 {
		return a.Ports[0]
	}
	return "P7"
}
