package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"mealagent"
	"mealagent/nutrition"
)

// WebSearchSource queries a web-search-derived nutrition endpoint as the last
// resort. The endpoint is expected to answer
// GET {endpoint}?q=<name>&limit=<n> with {"results": [...]}.
type WebSearchSource struct {
	endpoint   string
	httpClient mealagent.HTTPClient
}

func NewWebSearchSource(endpoint string, httpClient mealagent.HTTPClient) *WebSearchSource {
	return &WebSearchSource{endpoint: endpoint, httpClient: httpClient}
}

func (s *WebSearchSource) Type() string { return nutrition.SourceTypeWeb }

type webSearchResult struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	KcalPer100g float64 `json:"kcal_100g"`
	Protein100g float64 `json:"protein_100g"`
	Carbs100g   float64 `json:"carbs_100g"`
	Fat100g     float64 `json:"fat_100g"`
}

func (s *WebSearchSource) Search(ctx context.Context, name string, limit int) ([]nutrition.Candidate, error) {
	if s.endpoint == "" {
		return nil, nil
	}

	q := url.Values{}
	q.Set("q", name)
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("web search failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Results []webSearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	out := make([]nutrition.Candidate, 0, len(parsed.Results))
	for i, r := range parsed.Results {
		if r.Title == "" {
			continue
		}
		out = append(out, nutrition.Candidate{
			ID:             fmt.Sprintf("web:%s/%d", name, i),
			Name:           r.Title,
			KcalPer100g:    r.KcalPer100g,
			ProteinPer100g: r.Protein100g,
			CarbsPer100g:   r.Carbs100g,
			FatPer100g:     r.Fat100g,
			URL:            r.URL,
			SourceType:     nutrition.SourceTypeWeb,
			SourceLabel:    "Web search",
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
