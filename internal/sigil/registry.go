package sigil

// Model tiers. Three tiers spanning local to hosted frontier; the
// coordinator's quality-diversity metric counts filled (port, tier) niches
// against these.
const (
	TierLocal    = "local"
	TierStandard = "standard"
	TierFrontier = "frontier"
)

// Tiers lists the known tiers in ascending capability order.
var Tiers = []string{TierLocal, TierStandard, TierFrontier}

// ModelInfo is one entry in the static model registry. Updated only by code
// change; prices are USD per million tokens.
type ModelInfo struct {
	ModelID          string
	Family           string
	ParamsB          float64
	Provider         string
	Tier             string
	VRAMGB           float64
	PriceInPer1M     float64
	PriceOutPer1M    float64
	SupportsThinking bool
	RPMLimit         int
	RPDLimit         int
}

// Cost computes the USD cost of one call from token counts. Local models
// cost zero.
func (m ModelInfo) Cost(tokensIn, tokensOut int) float64 {
	return float64(tokensIn)/1e6*m.PriceInPer1M + float64(tokensOut)/1e6*m.PriceOutPer1M
}

// registry is the fixed model table. Local entries mirror what the model
// server typically has pulled; hosted entries carry provider pricing and
// rate limits so signal metadata can report cost without a network call.
var registry = map[string]ModelInfo{
	"gemma3:4b": {
		ModelID: "gemma3:4b", Family: "Gemma", ParamsB: 4, Provider: "ollama",
		Tier: TierLocal, VRAMGB: 3.3,
	},
	"gemma3:12b": {
		ModelID: "gemma3:12b", Family: "Gemma", ParamsB: 12, Provider: "ollama",
		Tier: TierLocal, VRAMGB: 8.1,
	},
	"llama3.2:3b": {
		ModelID: "llama3.2:3b", Family: "Llama", ParamsB: 3, Provider: "ollama",
		Tier: TierLocal, VRAMGB: 2.0,
	},
	"qwen2.5:14b": {
		ModelID: "qwen2.5:14b", Family: "Qwen", ParamsB: 14, Provider: "ollama",
		Tier: TierLocal, VRAMGB: 9.0,
	},
	"qwen2.5-coder:7b": {
		ModelID: "qwen2.5-coder:7b", Family: "Qwen", ParamsB: 7, Provider: "ollama",
		Tier: TierLocal, VRAMGB: 4.7,
	},
	"qwen3:8b": {
		ModelID: "qwen3:8b", Family: "Qwen", ParamsB: 8, Provider: "ollama",
		Tier: TierLocal, VRAMGB: 5.2, SupportsThinking: true,
	},
	"nomic-embed-text": {
		ModelID: "nomic-embed-text", Family: "Nomic", ParamsB: 0.137, Provider: "ollama",
		Tier: TierLocal, VRAMGB: 0.3,
	},
	"deepseek-chat": {
		ModelID: "deepseek-chat", Family: "DeepSeek", ParamsB: 671, Provider: "deepseek",
		Tier: TierStandard, PriceInPer1M: 0.27, PriceOutPer1M: 1.10,
	},
	"gemini-2.0-flash": {
		ModelID: "gemini-2.0-flash", Family: "Gemini", Provider: "google",
		Tier: TierStandard, PriceInPer1M: 0.10, PriceOutPer1M: 0.40,
		RPMLimit: 15, RPDLimit: 1500,
	},
	"gemini-2.5-pro": {
		ModelID: "gemini-2.5-pro", Family: "Gemini", Provider: "google",
		Tier: TierFrontier, PriceInPer1M: 1.25, PriceOutPer1M: 10.0,
		SupportsThinking: true, RPMLimit: 5, RPDLimit: 100,
	},
	"gpt-4o-mini": {
		ModelID: "gpt-4o-mini", Family: "GPT", Provider: "openai",
		Tier: TierStandard, PriceInPer1M: 0.15, PriceOutPer1M: 0.60,
	},
	"claude-sonnet-4": {
		ModelID: "claude-sonnet-4", Family: "Claude", Provider: "anthropic",
		Tier: TierFrontier, PriceInPer1M: 3.0, PriceOutPer1M: 15.0,
		SupportsThinking: true,
	},
}

// Lookup returns the registry entry for a model ID.
func Lookup(modelID string) (ModelInfo, bool) {
	m, ok := registry[modelID]
	return m, ok
}

// Known lists all registered model IDs.
func Known() []string {
	out := make([]string, 0, len(registry))
	for id := range registry {
		out = append(out, id)
	}
	return out
}
