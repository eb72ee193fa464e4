package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hivefleet/hfo/internal/fleet"
	"github.com/hivefleet/hfo/internal/hfo"
	"github.com/hivefleet/hfo/internal/sigil"
	"github.com/hivefleet/hfo/internal/stigmergy"
	"github.com/hivefleet/hfo/internal/util"
)

// WishSource tags wish verifier events.
const WishSource = "wish_verifier"

// WishStateFile is the persisted wish registry at the workspace root.
const WishStateFile = ".p7_wish_state.json"

// Verdicts.
const (
	VerdictGranted = "GRANTED"
	VerdictDenied  = "DENIED"
)

// Check is one named invariant with its SBE clauses and evaluation
// function. Eval returns nil when the invariant holds.
type Check struct {
	Name  string
	Given string
	When  string
	Then  string
	Eval  func(v *Verifier) error
}

// Wish is one persisted registry entry.
type Wish struct {
	WishID          string `json:"wish_id"`
	WishText        string `json:"wish_text"`
	CheckName       string `json:"check_name"`
	LastVerdict     string `json:"last_verdict,omitempty"`
	LastEvaluated   string `json:"last_evaluated,omitempty"`
	EvaluationCount int    `json:"evaluation_count"`
}

type wishState struct {
	Wishes map[string]Wish `json:"wishes"`
}

// Violation records one failed check.
type Violation struct {
	Check  string `json:"check"`
	Reason string `json:"reason"`
}

// WishReport is the verifier's output for one invocation.
type WishReport struct {
	Verdict    string      `json:"verdict"`
	Checked    int         `json:"checked"`
	Violations []Violation `json:"violations,omitempty"`
}

// Verifier evaluates the invariant registry against one workspace.
type Verifier struct {
	DB      *sql.DB
	Runtime *hfo.Runtime
	Writer  *stigmergy.Writer
	Builder *sigil.Builder
	Now     func() time.Time
}

// NewVerifier builds a verifier over the store and workspace.
func NewVerifier(db *sql.DB, rt *hfo.Runtime, w *stigmergy.Writer, b *sigil.Builder) *Verifier {
	return &Verifier{DB: db, Runtime: rt, Writer: w, Builder: b, Now: time.Now}
}

// goldAllowlist is the fixed set of entries permitted directly under the
// gold resources directory.
var goldAllowlist = map[string]bool{
	"README.md":             true,
	"pointers_blessed.json": true,
	"hfo.toml":              true,
	"ssot.db":               true,
	"ssot.db-wal":           true,
	"ssot.db-shm":           true,
}

// Checks is the invariant registry, in evaluation order.
var Checks = []Check{
	{
		Name:  "ssot_health",
		Given: "a workspace with a blessed store",
		When:  "the store is opened and queried",
		Then:  "required tables answer and documents exist",
		Eval:  (*Verifier).checkSSOTHealth,
	},
	{
		Name:  "heartbeat_compliance",
		Given: "sealed daemons in the fleet state file",
		When:  "the last hour of events is scanned",
		Then:  "every sealed daemon has written at least one event",
		Eval:  (*Verifier).checkHeartbeatCompliance,
	},
	{
		Name:  "prey8_integrity",
		Given: "recent perceive events",
		When:  "each perceive nonce is traced forward",
		Then:  "the nonce appears in a yield event",
		Eval:  (*Verifier).checkPrey8Integrity,
	},
	{
		Name:  "medallion_boundary",
		Given: "the gold resources directory",
		When:  "its direct entries are listed",
		Then:  "only allowlisted files are present",
		Eval:  (*Verifier).checkMedallionBoundary,
	},
	{
		Name:  "daemon_fleet_alive",
		Given: "sealed daemons in the fleet state file",
		When:  "each recorded PID is probed",
		Then:  "every sealed daemon has a live process",
		Eval:  (*Verifier).checkFleetAlive,
	},
	{
		Name:  "stigmergy_freshness",
		Given: "the event stream",
		When:  "the last four hours are counted",
		Then:  "at least one event exists",
		Eval:  (*Verifier).checkFreshness,
	},
	{
		Name:  "config_valid",
		Given: "the workspace configuration file",
		When:  "it is loaded",
		Then:  "the loader reports zero errors",
		Eval:  (*Verifier).checkConfigValid,
	},
}

func checkByName(name string) *Check {
	for i := range Checks {
		if Checks[i].Name == name {
			return &Checks[i]
		}
	}
	return nil
}

func (v *Verifier) checkSSOTHealth() error {
	for _, table := range []string{"stigmergy_events", "documents", "compute_route", "embed_queue"} {
		var n int
		if err := v.DB.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
			return fmt.Errorf("table %s unreachable: %v", table, err)
		}
		if table == "documents" && n == 0 {
			return fmt.Errorf("documents table is empty")
		}
	}
	var n int
	if err := v.DB.QueryRow(`SELECT COUNT(*) FROM documents_fts WHERE documents_fts MATCH 'the'`).Scan(&n); err != nil {
		return fmt.Errorf("FTS query failed: %v", err)
	}
	return nil
}

func (v *Verifier) checkHeartbeatCompliance() error {
	st := fleet.LoadState(v.Runtime.Root)
	since := v.Now().Add(-time.Hour)
	var silent []string
	for name, d := range st.Daemons {
		if !d.Sealed {
			continue
		}
		n, err := stigmergy.CountSince(v.DB, since, name)
		if err != nil {
			return fmt.Errorf("counting events for %s: %v", name, err)
		}
		if n == 0 {
			silent = append(silent, name)
		}
	}
	if len(silent) > 0 {
		sort.Strings(silent)
		return fmt.Errorf("sealed daemons silent for an hour: %s", strings.Join(silent, ", "))
	}
	return nil
}

// prey8IntegrityWindow bounds how many recent perceive events get traced.
const prey8IntegrityWindow = 200

func (v *Verifier) checkPrey8Integrity() error {
	perceives, err := stigmergy.RecentByType(v.DB,
		v.Runtime.Generation+".prey8.perceive", prey8IntegrityWindow)
	if err != nil {
		return fmt.Errorf("reading perceive events: %v", err)
	}
	yields, err := stigmergy.RecentByType(v.DB,
		v.Runtime.Generation+".prey8.yield", prey8IntegrityWindow*2)
	if err != nil {
		return fmt.Errorf("reading yield events: %v", err)
	}

	yielded := map[string]bool{}
	for i := range yields {
		env, err := yields[i].Envelope()
		if err != nil || env.Data == nil {
			continue
		}
		if nonce, _ := env.Data["perceive_nonce"].(string); nonce != "" {
			yielded[nonce] = true
		}
	}

	orphans := 0
	for i := range perceives {
		env, err := perceives[i].Envelope()
		if err != nil || env.Data == nil {
			continue
		}
		nonce, _ := env.Data["nonce"].(string)
		if nonce != "" && !yielded[nonce] {
			orphans++
		}
	}
	// In-flight sessions are expected; flag only a systemic gap.
	if len(perceives) > 0 && orphans > len(perceives)/2 {
		return fmt.Errorf("%d of %d recent perceives never yielded", orphans, len(perceives))
	}
	return nil
}

func (v *Verifier) checkMedallionBoundary() error {
	goldDir := filepath.Join(v.Runtime.Root, "resources", "gold")
	entries, err := os.ReadDir(goldDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("listing gold directory: %v", err)
	}
	var strays []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !goldAllowlist[e.Name()] {
			strays = append(strays, e.Name())
		}
	}
	if len(strays) > 0 {
		sort.Strings(strays)
		return fmt.Errorf("unexpected files in gold: %s", strings.Join(strays, ", "))
	}
	return nil
}

func (v *Verifier) checkFleetAlive() error {
	st := fleet.LoadState(v.Runtime.Root)
	var dead []string
	for name, d := range st.Daemons {
		if !d.Sealed {
			continue
		}
		if !fleet.PIDAlive(d.PID) {
			dead = append(dead, fmt.Sprintf("%s (pid %d)", name, d.PID))
		}
	}
	if len(dead) > 0 {
		sort.Strings(dead)
		return fmt.Errorf("sealed daemons without a live process: %s", strings.Join(dead, ", "))
	}
	return nil
}

func (v *Verifier) checkFreshness() error {
	n, err := stigmergy.CountSince(v.DB, v.Now().Add(-4*time.Hour), "")
	if err != nil {
		return fmt.Errorf("counting recent events: %v", err)
	}
	if n == 0 {
		return fmt.Errorf("no events in the last 4 hours")
	}
	return nil
}

func (v *Verifier) checkConfigValid() error {
	if v.Runtime.Config == nil {
		return nil
	}
	if len(v.Runtime.Config.LoadErrs) > 0 {
		return fmt.Errorf("config errors: %s", strings.Join(v.Runtime.Config.LoadErrs, "; "))
	}
	return nil
}

// Audit evaluates every registered check, updates the wish registry, and
// writes one summary event.
func (v *Verifier) Audit() (*WishReport, error) {
	report := &WishReport{Verdict: VerdictGranted}
	st := v.loadWishState()
	now := v.Now().UTC().Format(time.RFC3339)

	for i := range Checks {
		c := &Checks[i]
		report.Checked++
		verdict := VerdictGranted
		if err := c.Eval(v); err != nil {
			verdict = VerdictDenied
			report.Verdict = VerdictDenied
			report.Violations = append(report.Violations, Violation{Check: c.Name, Reason: err.Error()})
		}
		for id, w := range st.Wishes {
			if w.CheckName != c.Name {
				continue
			}
			w.LastVerdict = verdict
			w.LastEvaluated = now
			w.EvaluationCount++
			st.Wishes[id] = w
		}
	}

	if err := v.saveWishState(st); err != nil {
		return nil, err
	}
	if err := v.emit(report); err != nil {
		return nil, err
	}
	return report, nil
}

// Verify evaluates a single named check without touching the registry.
func (v *Verifier) Verify(name string) (*WishReport, error) {
	c := checkByName(name)
	if c == nil {
		return nil, fmt.Errorf("unknown check %q", name)
	}
	report := &WishReport{Verdict: VerdictGranted, Checked: 1}
	if err := c.Eval(v); err != nil {
		report.Verdict = VerdictDenied
		report.Violations = append(report.Violations, Violation{Check: c.Name, Reason: err.Error()})
	}
	if err := v.emit(report); err != nil {
		return nil, err
	}
	return report, nil
}

// Grant registers a wish bound to a named check and evaluates it once.
func (v *Verifier) Grant(wishText, checkName string) (*Wish, error) {
	c := checkByName(checkName)
	if c == nil {
		return nil, fmt.Errorf("unknown check %q", checkName)
	}
	st := v.loadWishState()

	w := Wish{
		WishID:    uuid.NewString()[:8],
		WishText:  wishText,
		CheckName: checkName,
	}
	w.LastVerdict = VerdictGranted
	if err := c.Eval(v); err != nil {
		w.LastVerdict = VerdictDenied
	}
	w.LastEvaluated = v.Now().UTC().Format(time.RFC3339)
	w.EvaluationCount = 1

	st.Wishes[w.WishID] = w
	if err := v.saveWishState(st); err != nil {
		return nil, err
	}
	return &w, nil
}

// Revoke removes a wish from the registry.
func (v *Verifier) Revoke(wishID string) error {
	st := v.loadWishState()
	if _, ok := st.Wishes[wishID]; !ok {
		return fmt.Errorf("no wish %q", wishID)
	}
	delete(st.Wishes, wishID)
	return v.saveWishState(st)
}

// Wishes lists the registry sorted by wish id.
func (v *Verifier) Wishes() []Wish {
	st := v.loadWishState()
	out := make([]Wish, 0, len(st.Wishes))
	for _, w := range st.Wishes {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WishID < out[j].WishID })
	return out
}

func (v *Verifier) loadWishState() *wishState {
	st := &wishState{}
	ok, err := util.ReadJSONFile(filepath.Join(v.Runtime.Root, WishStateFile), st)
	if err != nil || !ok || st.Wishes == nil {
		st.Wishes = map[string]Wish{}
	}
	return st
}

func (v *Verifier) saveWishState(st *wishState) error {
	if err := util.WriteJSONAtomic(filepath.Join(v.Runtime.Root, WishStateFile), st); err != nil {
		return fmt.Errorf("persisting wish registry: %w", err)
	}
	return nil
}

func (v *Verifier) emit(report *WishReport) error {
	payload := map[string]interface{}{
		"verdict":    report.Verdict,
		"checked":    report.Checked,
		"violations": report.Violations,
	}
	sig := v.Builder.Build("P7", "system", WishSource, "", "internal",
		sigil.Observations{TaskType: "wish_audit"})
	if _, err := v.Writer.WriteEvent(v.Writer.Generation+".audit.wish", "wish", WishSource, payload, sig); err != nil {
		return fmt.Errorf("emitting wish event: %w", err)
	}
	return nil
}
