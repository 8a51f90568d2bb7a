package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mealagent/nutrition"
	"mealagent/nutrition/sources/storage"
)

// LocalProduct is one row of the local product reference catalog.
type LocalProduct struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Brand       string  `json:"brand,omitempty"`
	KcalPer100g float64 `json:"kcal_100g"`
	Protein100g float64 `json:"protein_100g"`
	Carbs100g   float64 `json:"carbs_100g"`
	Fat100g     float64 `json:"fat_100g"`
	URL         string  `json:"url,omitempty"`
}

// LocalCatalog is the on-disk shape of the product reference catalog.
type LocalCatalog struct {
	Products []LocalProduct `json:"products"`
}

// LocalSource serves candidates from the local product reference catalog,
// loaded through a ProductState (file, S3, or test data).
type LocalSource struct {
	state storage.ProductState
}

func NewLocalSource(state storage.ProductState) *LocalSource {
	return &LocalSource{state: state}
}

func (s *LocalSource) Type() string { return nutrition.SourceTypeLocal }

// Search matches catalog products whose name or brand contains any query
// token, in catalog order.
func (s *LocalSource) Search(ctx context.Context, name string, limit int) ([]nutrition.Candidate, error) {
	catalog, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	tokens := nutrition.Tokenize(name)
	var out []nutrition.Candidate
	for _, p := range catalog.Products {
		if !matchesAny(p, tokens) {
			continue
		}
		out = append(out, nutrition.Candidate{
			ID:             "local:" + p.ID,
			Name:           p.Name,
			Brand:          p.Brand,
			KcalPer100g:    p.KcalPer100g,
			ProteinPer100g: p.Protein100g,
			CarbsPer100g:   p.Carbs100g,
			FatPer100g:     p.Fat100g,
			URL:            p.URL,
			SourceType:     nutrition.SourceTypeLocal,
			SourceLabel:    "Local product catalog",
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *LocalSource) load(ctx context.Context) (LocalCatalog, error) {
	b, err := s.state.Load(ctx)
	if err != nil {
		return LocalCatalog{}, fmt.Errorf("read product catalog: %w", err)
	}
	var c LocalCatalog
	if err := json.Unmarshal(b, &c); err != nil {
		return LocalCatalog{}, fmt.Errorf("decode product catalog: %w", err)
	}
	return c, nil
}

func matchesAny(p LocalProduct, tokens []string) bool {
	haystack := strings.ToLower(p.Name + " " + p.Brand)
	for _, t := range tokens {
		if strings.Contains(haystack, t) {
			return true
		}
	}
	return false
}
