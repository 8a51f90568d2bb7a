package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joeshaw/envdecode"

	"mealagent"
	"mealagent/agent"
	"mealagent/classifier/bedrock"
	"mealagent/classifier/heuristic"
	"mealagent/nutrition"
	"mealagent/nutrition/sources"
	"mealagent/nutrition/sources/storage"
	"mealagent/store"
)

type Params struct {
	Text         string                     `json:"text"`
	SessionID    string                     `json:"session_id"`
	ActiveMealID string                     `json:"active_meal_id,omitempty"`
	History      []mealagent.HistoryMessage `json:"history,omitempty"`
}

type Results struct {
	Result mealagent.RunResult `json:"result"`
}

func main() {
	fn := func(ctx context.Context, params Params) (Results, error) {
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
			return Results{}, err
		}
		defer st.Close()

		loc, err := time.LoadLocation(agentConfig.ReferenceTimezone)
		if err != nil {
			return Results{}, fmt.Errorf("invalid reference timezone %q: %w", agentConfig.ReferenceTimezone, err)
		}

		// Product catalog from S3 when configured, bundled file otherwise.
		var productState storage.ProductState
		s3Bucket := os.Getenv("ARTIFACTS_S3_BUCKET")
		productsKey := os.Getenv("ARTIFACTS_PRODUCTS_S3_KEY")
		if s3Bucket != "" && productsKey != "" {
			awsCfg, err := config.LoadDefaultConfig(ctx)
			if err != nil {
				return Results{}, fmt.Errorf("failed to load AWS config: %w", err)
			}
			productState = storage.NewS3ProductState(s3.NewFromConfig(awsCfg), s3Bucket, productsKey)
			slog.Info("SETUP: S3 product catalog initialized", "bucket", s3Bucket, "key", productsKey)
		} else {
			productState = storage.NewFileProductState(agentConfig.ProductCatalogPath)
			slog.Info("SETUP: File product catalog initialized", "path", agentConfig.ProductCatalogPath)
		}

		primary := []sources.Source{
			sources.NewCatalogSource(st),
			sources.NewLocalSource(productState),
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
			return Results{}, err
		}
		llm := bedrock.NewLLMClient(brc, bedrock.LLMOptions{
			ModelID:     modelConfig.ModelID,
			MaxTokens:   modelConfig.MaxTokens,
			Temperature: modelConfig.Temperature,
			TopP:        modelConfig.TopP,
		})

		selector := nutrition.NewSelector(resolver, bedrock.NewAdvisor(llm), agentConfig.CandidateLimit)

		runtime := agent.New(
			bedrock.NewClassifier(llm),
			heuristic.New(),
			selector,
			st,
			mealagent.NewStdoutTurnLogger(),
			agent.WithLocation(loc))

		result, err := runtime.ProcessTurn(ctx, agent.TurnInput{
			Text:         params.Text,
			SessionID:    params.SessionID,
			ActiveMealID: params.ActiveMealID,
			History:      params.History,
		})
		if err != nil {
			slog.Error("RESULT: Error handling turn", "error", err)
			return Results{}, err
		}

		return Results{Result: result}, nil
	}

	lambda.Start(fn)
}

func newBedrockRuntimeClient(ctx context.Context) (*bedrockruntime.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}
