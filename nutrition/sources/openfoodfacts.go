package sources

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"context"

	"mealagent"
	"mealagent/nutrition"
)

// OpenFoodFactsSource queries one Open Food Facts host (a country-scoped one
// like de.openfoodfacts.org, or world.openfoodfacts.org).
type OpenFoodFactsSource struct {
	host       string
	sourceType string
	label      string
	httpClient mealagent.HTTPClient
}

// NewRegionalOpenFoodFacts creates a source scoped to a country host, e.g.
// countryCode "de".
func NewRegionalOpenFoodFacts(countryCode string, httpClient mealagent.HTTPClient) *OpenFoodFactsSource {
	return &OpenFoodFactsSource{
		host:       countryCode + ".openfoodfacts.org",
		sourceType: nutrition.SourceTypeRegional,
		label:      "Open Food Facts (" + countryCode + ")",
		httpClient: httpClient,
	}
}

// NewGlobalOpenFoodFacts creates a source for the world-wide dataset.
func NewGlobalOpenFoodFacts(httpClient mealagent.HTTPClient) *OpenFoodFactsSource {
	return &OpenFoodFactsSource{
		host:       "world.openfoodfacts.org",
		sourceType: nutrition.SourceTypeGlobal,
		label:      "Open Food Facts",
		httpClient: httpClient,
	}
}

func (s *OpenFoodFactsSource) Type() string { return s.sourceType }

// offProduct mirrors the fields of the search response this source reads.
type offProduct struct {
	Code        string         `json:"code"`
	ProductName string         `json:"product_name"`
	Brands      string         `json:"brands"`
	Nutriments  map[string]any `json:"nutriments"`
}

type offSearchResponse struct {
	Products []offProduct `json:"products"`
}

func (s *OpenFoodFactsSource) Search(ctx context.Context, name string, limit int) ([]nutrition.Candidate, error) {
	reqURL := s.searchURL(name, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
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
		return nil, fmt.Errorf("search request failed with status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed offSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	out := make([]nutrition.Candidate, 0, len(parsed.Products))
	for _, p := range parsed.Products {
		if p.ProductName == "" {
			continue
		}
		kcal, okK := nutriment(p.Nutriments, "energy-kcal_100g")
		protein, okP := nutriment(p.Nutriments, "proteins_100g")
		carbs, okC := nutriment(p.Nutriments, "carbohydrates_100g")
		fat, okF := nutriment(p.Nutriments, "fat_100g")
		if !okK || !okP || !okC || !okF {
			continue
		}
		out = append(out, nutrition.Candidate{
			ID:             s.sourceType + ":" + candidateCode(p, name),
			Name:           p.ProductName,
			Brand:          p.Brands,
			KcalPer100g:    kcal,
			ProteinPer100g: protein,
			CarbsPer100g:   carbs,
			FatPer100g:     fat,
			URL:            s.productURL(p, name),
			SourceType:     s.sourceType,
			SourceLabel:    s.label,
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *OpenFoodFactsSource) searchURL(name string, limit int) string {
	q := url.Values{}
	q.Set("search_terms", name)
	q.Set("search_simple", "1")
	q.Set("action", "process")
	q.Set("json", "1")
	q.Set("page_size", strconv.Itoa(limit))
	return fmt.Sprintf("https://%s/cgi/search.pl?%s", s.host, q.Encode())
}

// productURL is the canonical per-product link when the product carries a
// stable code, else a regenerated search-query link.
func (s *OpenFoodFactsSource) productURL(p offProduct, query string) string {
	if p.Code != "" {
		return fmt.Sprintf("https://%s/product/%s", s.host, p.Code)
	}
	return s.searchURL(query, 1)
}

// candidateCode gives every candidate a stable, source-qualified id for
// dedup, falling back to the product name when no barcode exists.
func candidateCode(p offProduct, query string) string {
	if p.Code != "" {
		return p.Code
	}
	return query + "/" + p.ProductName
}

// nutriment coerces a nutriments entry to float64; OFF serves numbers and
// numeric strings interchangeably.
func nutriment(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
