package gatemachine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hivefleet/hfo/internal/sigil"
	"github.com/hivefleet/hfo/internal/stigmergy"
)

// Result statuses.
const (
	StatusOK          = "OK"
	StatusYielded     = "YIELDED"
	StatusRetry       = "RETRY"
	StatusError       = "ERROR"
	StatusGateBlocked = "GATE_BLOCKED"
)

// Result is what every tile operation returns. Tamper outcomes are data,
// not errors: the caller inspects Status.
type Result struct {
	Status      string `json:"status"`
	SessionID   string `json:"session_id,omitempty"`
	Phase       string `json:"phase,omitempty"`
	Nonce       string `json:"nonce,omitempty"`
	Token       string `json:"token,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Instruction string `json:"instruction,omitempty"`
	ChainLength int    `json:"chain_length,omitempty"`
}

// Engine runs one eight-tile protocol for any number of agents. All state
// transitions serialize on one mutex; sessions persist to per-agent JSON
// files after every transition so a restarted server can resume.
type Engine struct {
	Protocol Protocol
	Root     string
	Writer   *stigmergy.Writer
	Builder  *sigil.Builder

	mu       sync.Mutex
	sessions map[string]*Session

	// Now is swappable for tests.
	Now func() time.Time
}

// NewEngine creates an engine rooted at the workspace.
func NewEngine(proto Protocol, root string, w *stigmergy.Writer, b *sigil.Builder) *Engine {
	return &Engine{
		Protocol: proto,
		Root:     root,
		Writer:   w,
		Builder:  b,
		sessions: make(map[string]*Session),
		Now:      time.Now,
	}
}

// session returns the agent's session, restoring from disk when the
// process is fresh. The in-memory map wins on disagreement.
func (e *Engine) session(agentID string) *Session {
	if s, ok := e.sessions[agentID]; ok {
		return s
	}
	if s, _ := loadSession(e.Root, e.Protocol.Name, agentID); s != nil {
		e.sessions[agentID] = s
		return s
	}
	s := &Session{AgentID: agentID, Phase: phaseIdle}
	e.sessions[agentID] = s
	return s
}

func (e *Engine) persist(s *Session) {
	s.UpdatedAt = e.Now().UTC().Format(time.RFC3339)
	_ = s.save(e.Root, e.Protocol.Name)
}

// Perceive opens a session: tile one of the protocol. The agent must be
// authorized, all three fields must be non-empty, and the prior session (if
// any) must have yielded.
func (e *Engine) Perceive(agentID, observations, memoryRefs, stigmergyDigest string) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	step := e.Protocol.Steps[0]
	info, ok := ResolveAgent(agentID)
	if !ok {
		return e.gateBlocked(agentID, step, "agent not registered")
	}
	if !info.allowsGate(step) {
		return e.gateBlocked(agentID, step, fmt.Sprintf("agent not authorized for %s", step))
	}
	if observations == "" || memoryRefs == "" || stigmergyDigest == "" {
		return e.gateBlocked(agentID, step, "all of observations, memory_refs, stigmergy_digest are required")
	}

	s := e.session(agentID)
	if s.Phase != phaseIdle && s.Phase != phaseStep4 {
		return e.gateBlocked(agentID, step, fmt.Sprintf("cannot %s from phase %s", step, e.phaseName(s.Phase)))
	}

	// New session, new chain. The genesis parent is the constant, never
	// the prior chain's tip.
	nonce := uuid.NewString()
	*s = Session{
		AgentID:       agentID,
		SessionID:     uuid.NewString(),
		Phase:         phaseStep1,
		PerceiveNonce: nonce,
	}
	data := map[string]interface{}{
		"session_id":       s.SessionID,
		"nonce":            nonce,
		"observations":     observations,
		"memory_refs":      memoryRefs,
		"stigmergy_digest": stigmergyDigest,
	}
	if err := s.appendChain(step, nonce, data); err != nil {
		return &Result{Status: StatusError, Reason: err.Error()}
	}
	e.persist(s)
	e.writeStepEvent(info, agentID, step, s, data)

	return &Result{
		Status:      StatusOK,
		SessionID:   s.SessionID,
		Phase:       e.phaseName(s.Phase),
		Nonce:       nonce,
		ChainLength: len(s.Chain),
		Instruction: fmt.Sprintf("You MUST call %s with this nonce.", e.Protocol.Steps[1]),
	}
}

// React is tile two. The supplied nonce must match the session's recorded
// perceive nonce; re-react is allowed after an execute failure.
func (e *Engine) React(agentID, perceiveNonce, sharedDataRefs, navigationIntent string, meadowsLevel int, meadowsJustification, sequentialPlan string) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	step := e.Protocol.Steps[1]
	info, ok := ResolveAgent(agentID)
	if !ok {
		return e.gateBlocked(agentID, step, "agent not registered")
	}
	s := e.session(agentID)

	if perceiveNonce == "" || s.PerceiveNonce == "" || perceiveNonce != s.PerceiveNonce {
		return e.tamper(info, agentID, step, s, "perceive_nonce")
	}
	if s.Phase != phaseStep1 && s.Phase != phaseStep3 {
		return e.gateBlocked(agentID, step, fmt.Sprintf("cannot %s from phase %s", step, e.phaseName(s.Phase)))
	}
	if sharedDataRefs == "" || navigationIntent == "" || meadowsJustification == "" || sequentialPlan == "" {
		return e.gateBlocked(agentID, step, "all of shared_data_refs, navigation_intent, meadows_justification, sequential_plan are required")
	}
	if meadowsLevel < MeadowsMin || meadowsLevel > MeadowsMax {
		return e.gateBlocked(agentID, step, fmt.Sprintf("meadows_level must be %d..%d", MeadowsMin, MeadowsMax))
	}

	token := uuid.NewString()
	s.ReactTokens = append(s.ReactTokens, token)
	s.Phase = phaseStep2
	data := map[string]interface{}{
		"session_id":            s.SessionID,
		"react_token":           token,
		"shared_data_refs":      sharedDataRefs,
		"navigation_intent":     navigationIntent,
		"meadows_level":         meadowsLevel,
		"meadows_justification": meadowsJustification,
		"sequential_plan":       sequentialPlan,
	}
	if err := s.appendChain(step, token, data); err != nil {
		return &Result{Status: StatusError, Reason: err.Error()}
	}
	e.persist(s)
	e.writeStepEvent(info, agentID, step, s, data)

	return &Result{
		Status:      StatusOK,
		SessionID:   s.SessionID,
		Phase:       e.phaseName(s.Phase),
		Token:       token,
		ChainLength: len(s.Chain),
		Instruction: fmt.Sprintf("You MUST call %s with this token.", e.Protocol.Steps[2]),
	}
}

// Execute is tile three, gated on a valid react token and the three SBE
// clauses plus artifacts and the adversarial check.
func (e *Engine) Execute(agentID, reactToken, sbeGiven, sbeWhen, sbeThen, artifacts, adversarialCheck string) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	step := e.Protocol.Steps[2]
	info, ok := ResolveAgent(agentID)
	if !ok {
		return e.gateBlocked(agentID, step, "agent not registered")
	}
	s := e.session(agentID)

	if reactToken == "" || !s.hasReactToken(reactToken) {
		return e.tamper(info, agentID, step, s, "react_token")
	}
	if s.Phase != phaseStep2 {
		return e.gateBlocked(agentID, step, fmt.Sprintf("cannot %s from phase %s", step, e.phaseName(s.Phase)))
	}
	if sbeGiven == "" || sbeWhen == "" || sbeThen == "" || artifacts == "" || adversarialCheck == "" {
		return e.gateBlocked(agentID, step, "all of sbe_given, sbe_when, sbe_then, artifacts, adversarial_check are required")
	}

	token := uuid.NewString()
	s.ExecuteTokens = append(s.ExecuteTokens, token)
	s.Phase = phaseStep3
	data := map[string]interface{}{
		"session_id":        s.SessionID,
		"execute_token":     token,
		"sbe_given":         sbeGiven,
		"sbe_when":          sbeWhen,
		"sbe_then":          sbeThen,
		"artifacts":         artifacts,
		"adversarial_check": adversarialCheck,
	}
	if err := s.appendChain(step, token, data); err != nil {
		return &Result{Status: StatusError, Reason: err.Error()}
	}
	e.persist(s)
	e.writeStepEvent(info, agentID, step, s, data)

	return &Result{
		Status:      StatusOK,
		SessionID:   s.SessionID,
		Phase:       e.phaseName(s.Phase),
		Token:       token,
		ChainLength: len(s.Chain),
		Instruction: fmt.Sprintf("You MUST call %s with this token and your test results.", e.Protocol.Steps[3]),
	}
}

// Yield is the final tile. FAILED test status does not advance: the session
// stays in the executed phase and the agent must re-run execute (or react)
// with fixes. Fail-closed: no tests, no yield.
func (e *Engine) Yield(agentID, executeToken, testCommand, testOutput, status string) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	step := e.Protocol.Steps[3]
	info, ok := ResolveAgent(agentID)
	if !ok {
		return e.gateBlocked(agentID, step, "agent not registered")
	}
	s := e.session(agentID)

	if executeToken == "" || !s.hasExecuteToken(executeToken) {
		return e.tamper(info, agentID, step, s, "execute_token")
	}
	if s.Phase != phaseStep3 {
		return e.gateBlocked(agentID, step, fmt.Sprintf("cannot %s from phase %s", step, e.phaseName(s.Phase)))
	}
	if testCommand == "" || testOutput == "" {
		return e.gateBlocked(agentID, step, "test_command and test_output are required")
	}
	if status != YieldPassed && status != YieldFailed {
		return e.gateBlocked(agentID, step, fmt.Sprintf("status must be %s or %s", YieldPassed, YieldFailed))
	}

	if status == YieldFailed {
		// Do not advance. The chain keeps its tip; the next execute
		// appends after a fresh react/execute round.
		data := map[string]interface{}{
			"session_id":     s.SessionID,
			"perceive_nonce": s.PerceiveNonce,
			"test_command":   testCommand,
			"test_output":    testOutput,
			"status":         status,
		}
		e.persist(s)
		e.writeEvent(info, agentID, step+"_failed", s, data)
		return &Result{
			Status:      StatusRetry,
			SessionID:   s.SessionID,
			Phase:       e.phaseName(s.Phase),
			Reason:      "tests failed",
			Instruction: fmt.Sprintf("Tests failed. Call %s and %s again with fixes, then %s with the new token.", e.Protocol.Steps[1], e.Protocol.Steps[2], step),
		}
	}

	data := map[string]interface{}{
		"session_id":     s.SessionID,
		"perceive_nonce": s.PerceiveNonce,
		"test_command":   testCommand,
		"test_output":    testOutput,
		"status":         status,
	}
	if err := s.appendChain(step, executeToken, data); err != nil {
		return &Result{Status: StatusError, Reason: err.Error()}
	}
	s.Phase = phaseStep4
	e.persist(s)
	e.writeStepEvent(info, agentID, step, s, data)

	return &Result{
		Status:      StatusYielded,
		SessionID:   s.SessionID,
		Phase:       e.phaseName(s.Phase),
		ChainLength: len(s.Chain),
		Instruction: fmt.Sprintf("Session complete. The next %s starts a new chain.", e.Protocol.Steps[0]),
	}
}

// Chain returns a copy of the agent's current hash chain for inspection.
func (e *Engine) Chain(agentID string) []ChainEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session(agentID)
	out := make([]ChainEntry, len(s.Chain))
	copy(out, s.Chain)
	return out
}

// phaseName renders a phase index for results and logs.
func (e *Engine) phaseName(phase int) string {
	if phase < 0 || phase >= len(e.Protocol.PhaseNames) {
		return "unknown"
	}
	return e.Protocol.PhaseNames[phase]
}

// tamper records a nonce/token mismatch. The chain is never rolled back;
// the session stays in place for inspection and the breach is visible in
// the stream.
func (e *Engine) tamper(info AgentInfo, agentID, step string, s *Session, field string) *Result {
	reason := fmt.Sprintf("Tamper Alert: %s mismatch", field)
	e.writeEvent(info, agentID, "tamper_alert", s, map[string]interface{}{
		"session_id": s.SessionID,
		"step":       step,
		"field":      field,
		"reason":     reason,
	})
	return &Result{Status: StatusError, SessionID: s.SessionID, Reason: reason}
}

// gateBlocked records a gate rejection without touching session state.
func (e *Engine) gateBlocked(agentID, step, reason string) *Result {
	info, _ := ResolveAgent(agentID)
	e.writeEvent(info, agentID, "gate_block", nil, map[string]interface{}{
		"step":   step,
		"agent":  agentID,
		"reason": reason,
	})
	return &Result{Status: StatusGateBlocked, Reason: reason}
}

func (e *Engine) writeStepEvent(info AgentInfo, agentID, step string, s *Session, data map[string]interface{}) {
	payload := make(map[string]interface{}, len(data)+2)
	for k, v := range data {
		payload[k] = v
	}
	payload["phase"] = e.phaseName(s.Phase)
	payload["chain_hash"] = s.Chain[len(s.Chain)-1].Hash
	e.writeEvent(info, agentID, step, s, payload)
}

// writeEvent emits one session event through the canonical writer. These
// types are exempt from the DB-level gate but still carry signal metadata
// so audits work uniformly across the stream.
func (e *Engine) writeEvent(info AgentInfo, agentID, action string, s *Session, data map[string]interface{}) {
	if e.Writer == nil {
		return
	}
	sig := e.Builder.Build(info.primaryPort(), "system", agentID, "", "internal",
		sigil.Observations{TaskType: e.Protocol.Name})
	subject := agentID
	if s != nil && s.SessionID != "" {
		subject = s.SessionID
	}
	eventType := fmt.Sprintf("%s.%s.%s", e.Writer.Generation, e.Protocol.Name, action)
	_, _ = e.Writer.WriteEvent(eventType, subject, agentID, data, sig)
}
