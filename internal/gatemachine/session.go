package gatemachine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/hivefleet/hfo/internal/util"
)

// GenesisHash is the constant parent of every chain's first entry. A
// session that completes and restarts begins a new chain from this same
// constant, independent of the prior chain.
const GenesisHash = "hfo:gatemachine:genesis:v1"

// ChainEntry is one link of a session's hash chain.
type ChainEntry struct {
	Step string `json:"step"`
	Hash string `json:"hash"`
}

// Session is the per-agent protocol state. The in-memory copy is
// authoritative within a process; the JSON file is a best-effort backup for
// server restarts.
type Session struct {
	AgentID       string       `json:"agent_id"`
	SessionID     string       `json:"session_id"`
	Phase         int          `json:"phase"`
	PerceiveNonce string       `json:"perceive_nonce,omitempty"`
	ReactTokens   []string     `json:"react_tokens,omitempty"`
	ExecuteTokens []string     `json:"execute_tokens,omitempty"`
	Chain         []ChainEntry `json:"chain,omitempty"`
	UpdatedAt     string       `json:"updated_at,omitempty"`
}

// chainHash computes SHA-256 over (parent_hash, nonce, canonical JSON of
// data). Keys sort during marshal, so the hash is stable for equal data.
func chainHash(parent, nonce string, data map[string]interface{}) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshaling chain data: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(parent))
	h.Write([]byte(nonce))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// appendChain appends one entry hashed against the chain tip. The chain is
// strictly append-only; nothing ever rewrites or truncates it in-session.
func (s *Session) appendChain(step, nonce string, data map[string]interface{}) error {
	parent := GenesisHash
	if n := len(s.Chain); n > 0 {
		parent = s.Chain[n-1].Hash
	}
	hash, err := chainHash(parent, nonce, data)
	if err != nil {
		return err
	}
	s.Chain = append(s.Chain, ChainEntry{Step: step, Hash: hash})
	return nil
}

// hasReactToken reports whether tok was issued by this session's react
// step.
func (s *Session) hasReactToken(tok string) bool {
	for _, t := range s.ReactTokens {
		if t == tok {
			return true
		}
	}
	return false
}

// hasExecuteToken reports whether tok was issued by this session's execute
// step.
func (s *Session) hasExecuteToken(tok string) bool {
	for _, t := range s.ExecuteTokens {
		if t == tok {
			return true
		}
	}
	return false
}

// sessionFilePath is the per-agent state file, e.g.
// <root>/.prey8_session_p4_red_regnant.json.
func sessionFilePath(root, protoName, agentID string) string {
	return filepath.Join(root, fmt.Sprintf(".%s_session_%s.json", protoName, util.SafeSlug(agentID)))
}

// save persists the session, best-effort. Disk is backup only; errors are
// returned for logging but never block a transition.
func (s *Session) save(root, protoName string) error {
	return util.WriteJSONAtomic(sessionFilePath(root, protoName, s.AgentID), s)
}

// loadSession restores a session from disk. Missing or corrupt files yield
// (nil, nil).
func loadSession(root, protoName, agentID string) (*Session, error) {
	var s Session
	ok, err := util.ReadJSONFile(sessionFilePath(root, protoName, agentID), &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}
