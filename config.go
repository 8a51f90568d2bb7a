package mealagent

type ModelConfig struct {
	ModelID     string  `env:"MODEL_ID,required"`
	MaxTokens   int32   `env:"MAX_TOKENS,default=1024"`
	Temperature float32 `env:"TEMPERATURE,default=0.2"`
	TopP        float32 `env:"TOP_P,default=0.9"`
}

type AgentConfig struct {
	CountryHint         string `env:"NUTRITION_COUNTRY_HINT,default=de"`
	CandidateLimit      int    `env:"CANDIDATE_LIMIT,default=8"`
	CacheTTLSeconds     int    `env:"CANDIDATE_CACHE_TTL_SECONDS,default=300"`
	ProductCatalogPath  string `env:"PRODUCT_CATALOG_PATH,default=artifacts/products.json"`
	ReferenceTimezone   string `env:"REFERENCE_TIMEZONE,default=Europe/Berlin"`
	SlackWebhookURL     string `env:"SLACK_WEBHOOK_URL,default="`
	SlackChannel        string `env:"SLACK_CHANNEL,default=#meal-log"`
	WebSearchEndpoint   string `env:"WEB_SEARCH_ENDPOINT,default="`
	DisableReasoning    bool   `env:"DISABLE_REASONING,default=false"`
	TurnLogPath         string `env:"TURN_LOG_PATH,default="`
}

type StoreConfig struct {
	DBPath string `env:"MEAL_DB_PATH,default=meals.sqlite"`
}
