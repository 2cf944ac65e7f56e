package config

import "time"

type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Temperature is nil unless OPENAI_TEMPERATURE is set
	Temperature *float64
	Timeout     time.Duration
}

type AgentConfig struct {
	Locale        string
	MaxReconciles int
	TurnTimeout   time.Duration
}

type SearchConfig struct {
	Enabled      bool
	TavilyAPIKey string
	TavilyURL    string
	MaxResults   int
	CacheTTL     time.Duration
}

func loadLLMConfig() LLMConfig {
	return LLMConfig{
		APIKey:      getEnv("OPENAI_API_KEY", ""),
		BaseURL:     getEnv("OPENAI_BASE_URL", ""),
		Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		Temperature: getEnvOptionalFloat("OPENAI_TEMPERATURE"),
		Timeout:     getEnvDuration("OPENAI_TIMEOUT", 60*time.Second),
	}
}

func loadAgentConfig() AgentConfig {
	return AgentConfig{
		Locale:        getEnv("AGENT_LOCALE", "zh-CN"),
		MaxReconciles: getEnvInt("AGENT_MAX_RECONCILES", 1),
		TurnTimeout:   getEnvDuration("AGENT_TURN_TIMEOUT", 2*time.Minute),
	}
}

func loadSearchConfig() SearchConfig {
	return SearchConfig{
		Enabled:      getEnvBool("SEARCH_ENABLED", false),
		TavilyAPIKey: getEnv("TAVILY_API_KEY", ""),
		TavilyURL:    getEnv("TAVILY_URL", "https://api.tavily.com/search"),
		MaxResults:   getEnvInt("SEARCH_MAX_RESULTS", 3),
		CacheTTL:     getEnvDuration("SEARCH_CACHE_TTL", 10*time.Minute),
	}
}
