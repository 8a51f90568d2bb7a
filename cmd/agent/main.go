package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joeshaw/envdecode"

	"mealagent"
	"mealagent/agent"
	"mealagent/classifier/bedrock"
	"mealagent/classifier/heuristic"
	"mealagent/nutrition"
	"mealagent/nutrition/sources"
	"mealagent/nutrition/sources/storage"
	"mealagent/slack"
	"mealagent/store"
)

func main() {
	ctx := context.Background()

	var agentConfig mealagent.AgentConfig
	if err := envdecode.Decode(&agentConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	var storeConfig mealagent.StoreConfig
	if err := envdecode.Decode(&storeConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	st, err := store.Open(storeConfig.DBPath)
	if err != nil {
		slog.Error("SETUP: Failed to open store", "error", err)
		return
	}
	defer st.Close()

	loc, err := time.LoadLocation(agentConfig.ReferenceTimezone)
	if err != nil {
		slog.Error("SETUP: Invalid reference timezone", "timezone", agentConfig.ReferenceTimezone, "error", err)
		return
	}

	// The products table is seeded from the catalog artifact at startup and
	// served through the store; the raw file is not consulted again per query.
	seedProducts(ctx, st, storage.NewFileProductState(agentConfig.ProductCatalogPath))

	primary := []sources.Source{
		sources.NewCatalogSource(st),
		sources.NewRegionalOpenFoodFacts(agentConfig.CountryHint, http.DefaultClient),
		sources.NewGlobalOpenFoodFacts(http.DefaultClient),
	}
	var fallback sources.Source
	if agentConfig.WebSearchEndpoint != "" {
		fallback = sources.NewWebSearchSource(agentConfig.WebSearchEndpoint, http.DefaultClient)
	}
	resolver := sources.NewResolver(primary, fallback,
		time.Duration(agentConfig.CacheTTLSeconds)*time.Second, time.Now)

	sessionID := envOr("SESSION_ID", "cli")

	fallbackClassifier := heuristic.New()
	classifier := mealagent.Classifier(fallbackClassifier)
	var advisor nutrition.Advisor

	if !agentConfig.DisableReasoning {
		var modelConfig mealagent.ModelConfig
		if err := envdecode.Decode(&modelConfig); err != nil {
			log.Fatalf("Failed to decode: %s", err)
		}
		brc, err := newBedrockRuntimeClient(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to create Bedrock client", "error", err)
			return
		}
		llm := bedrock.NewLLMClient(brc, bedrock.LLMOptions{
			ModelID:     modelConfig.ModelID,
			MaxTokens:   modelConfig.MaxTokens,
			Temperature: modelConfig.Temperature,
			TopP:        modelConfig.TopP,
		})
		classifier = bedrock.NewClassifier(llm)
		advisor = bedrock.NewAdvisor(llm)
		slog.Info("SETUP: Reasoning classifier enabled", "model_id", modelConfig.ModelID)
	} else {
		slog.Info("SETUP: Reasoning disabled; heuristic classifier only")
	}

	selector := nutrition.NewSelector(resolver, advisor, agentConfig.CandidateLimit)

	turnLogger, cleanup, err := newTurnLogger(agentConfig.TurnLogPath, sessionID)
	if err != nil {
		slog.Error("SETUP: Failed to create turn logger", "error", err)
		return
	}
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("Failed to flush turn log", "error", err)
		}
	}()

	opts := []agent.Option{agent.WithLocation(loc)}
	if agentConfig.SlackWebhookURL != "" {
		opts = append(opts, agent.WithSlack(
			slack.NewClient(agentConfig.SlackWebhookURL, http.DefaultClient),
			agentConfig.SlackChannel))
	}

	runtime := agent.New(classifier, fallbackClassifier, selector, st, turnLogger, opts...)

	text := argOr(1, "2 eggs and 100g rice for breakfast")

	result, err := runtime.ProcessTurn(ctx, agent.TurnInput{
		Text:      text,
		SessionID: sessionID,
	})
	if err != nil {
		slog.Error("RESULT: Error handling turn", "error", err)
		return
	}

	fmt.Println(result.Message)
	if envelope, err := json.MarshalIndent(result.Envelope, "", "  "); err == nil {
		fmt.Println(string(envelope))
	}
}

// seedProducts loads the catalog artifact into the products table. Best
// effort: a missing or malformed catalog leaves the previous table contents.
func seedProducts(ctx context.Context, st *store.Store, state storage.ProductState) {
	b, err := state.Load(ctx)
	if err != nil {
		slog.Warn("SETUP: Product catalog unavailable; products table not reseeded", "error", err)
		return
	}
	var catalog sources.LocalCatalog
	if err := json.Unmarshal(b, &catalog); err != nil {
		slog.Warn("SETUP: Product catalog malformed; products table not reseeded", "error", err)
		return
	}

	products := make([]store.Product, 0, len(catalog.Products))
	for _, p := range catalog.Products {
		products = append(products, store.Product{
			ID:          p.ID,
			Name:        p.Name,
			Brand:       p.Brand,
			KcalPer100g: p.KcalPer100g,
			Protein100g: p.Protein100g,
			Carbs100g:   p.Carbs100g,
			Fat100g:     p.Fat100g,
			URL:         p.URL,
		})
	}
	if err := st.ReplaceProducts(ctx, products); err != nil {
		slog.Warn("SETUP: Failed to seed products table", "error", err)
		return
	}
	slog.Info("SETUP: Product reference table seeded", "products", len(products))
}

func newBedrockRuntimeClient(ctx context.Context) (*bedrockruntime.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}

func newTurnLogger(path, sessionID string) (mealagent.TurnLogger, func() error, error) {
	if path == "" {
		path = mealagent.NewTurnLogFilePath(sessionID)
	}
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		// Logging is auxiliary; run without it rather than refuse to start.
		slog.Warn("SETUP: Turn log file unavailable; logging disabled", "path", path, "error", err)
		return mealagent.NewNoOpTurnLogger(), func() error { return nil }, nil
	}

	logger := mealagent.NewFileTurnLogger(logFile)
	cleanup := func() error {
		return errors.Join(logger.Flush(), logFile.Close())
	}
	return logger, cleanup, nil
}

func argOr(i int, def string) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return def
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
