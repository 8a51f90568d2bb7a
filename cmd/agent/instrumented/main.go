package main

import (
	"bytes"
	"context"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joeshaw/envdecode"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

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

	var modelConfig mealagent.ModelConfig
	if err := envdecode.Decode(&modelConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

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

	primary := []sources.Source{
		sources.NewCatalogSource(st),
		sources.NewLocalSource(storage.NewFileProductState(agentConfig.ProductCatalogPath)),
		sources.NewRegionalOpenFoodFacts(agentConfig.CountryHint, http.DefaultClient),
		sources.NewGlobalOpenFoodFacts(http.DefaultClient),
	}
	var fallback sources.Source
	if agentConfig.WebSearchEndpoint != "" {
		fallback = sources.NewWebSearchSource(agentConfig.WebSearchEndpoint, http.DefaultClient)
	}
	resolver := sources.NewResolver(primary, fallback,
		time.Duration(agentConfig.CacheTTLSeconds)*time.Second, time.Now)

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

	selector := nutrition.NewSelector(resolver, bedrock.NewAdvisor(llm), agentConfig.CandidateLimit)

	tracerProvider, meterProvider, otelShutdown, err := mealagent.InitOtel(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
		return
	}
	defer func() {
		if err := otelShutdown(ctx); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	tracer := tracerProvider.Tracer(mealagent.TracerNameRuntime)
	meter := meterProvider.Meter(mealagent.TracerNameRuntime)

	ctx, span := tracer.Start(ctx, mealagent.TracerNameRuntime, trace.WithAttributes(
		attribute.String("model.id", modelConfig.ModelID),
		attribute.Int("model.max_tokens", int(modelConfig.MaxTokens)),
		attribute.Float64("model.temperature", float64(modelConfig.Temperature)),
		attribute.Float64("model.top_p", float64(modelConfig.TopP)),
	))
	defer span.End()

	runtime := agent.NewInstrumentedRuntime(
		agent.New(
			bedrock.NewClassifier(llm),
			heuristic.New(),
			selector,
			st,
			mealagent.NewStdoutTurnLogger(),
			agent.WithLocation(loc)),
		tracer,
		meter)

	text := argOr(1, "2 eggs and 100g rice for breakfast")
	sessionID := envOr("SESSION_ID", "instrumented")

	result, err := runtime.ProcessTurn(ctx, agent.TurnInput{
		Text:      text,
		SessionID: sessionID,
	})
	if err != nil {
		slog.Error("RESULT: Error handling turn", "error", err)
		return
	}

	webhookURL := agentConfig.SlackWebhookURL
	if webhookURL == "" {
		testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body := new(bytes.Buffer)
			body.ReadFrom(r.Body) // nolint: errcheck
			slog.Info("FINAL: Received request",
				"method", r.Method,
				"path", r.URL.Path,
				"header", r.Header,
				"body", body.String(),
			)
			w.WriteHeader(http.StatusOK)
		}))
		defer testServer.Close()
		webhookURL = testServer.URL
	}

	slackClient := slack.NewClient(webhookURL, http.DefaultClient)
	if err := slackClient.PostMessage(ctx, agentConfig.SlackChannel, slack.FormatTurnResult(result)); err != nil {
		slog.Error("Failed to post result to Slack", "error", err)
	}
}

func newBedrockRuntimeClient(ctx context.Context) (*bedrockruntime.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
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
