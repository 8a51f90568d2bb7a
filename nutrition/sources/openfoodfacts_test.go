package sources

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"mealagent/nutrition"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDoer struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

func jsonResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestOpenFoodFactsSearch(t *testing.T) {
	const body = `{
		"products": [
			{
				"code": "4012345",
				"product_name": "Skyr Natur",
				"brands": "Arla",
				"nutriments": {
					"energy-kcal_100g": 63,
					"proteins_100g": "11",
					"carbohydrates_100g": 4,
					"fat_100g": 0.2
				}
			},
			{
				"product_name": "Skyr Drink",
				"nutriments": {
					"energy-kcal_100g": 58,
					"proteins_100g": 9.5,
					"carbohydrates_100g": 4.5,
					"fat_100g": 0.1
				}
			},
			{
				"product_name": "Mystery Yogurt",
				"nutriments": {"energy-kcal_100g": 70}
			},
			{
				"product_name": "",
				"nutriments": {"energy-kcal_100g": 50, "proteins_100g": 3, "carbohydrates_100g": 4, "fat_100g": 1}
			}
		]
	}`

	var gotURL string
	doer := &mockDoer{doFunc: func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		assert.Equal(t, "application/json", req.Header.Get("Accept"))
		return jsonResponse(body), nil
	}}

	src := NewRegionalOpenFoodFacts("de", doer)
	got, err := src.Search(context.Background(), "skyr", 8)
	require.NoError(t, err)

	assert.Contains(t, gotURL, "de.openfoodfacts.org/cgi/search.pl")
	assert.Contains(t, gotURL, "search_terms=skyr")
	assert.Contains(t, gotURL, "page_size=8")

	// Incomplete nutriments and empty names are skipped.
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "de:4012345", first.ID)
	assert.Equal(t, "Skyr Natur", first.Name)
	assert.Equal(t, "Arla", first.Brand)
	assert.InDelta(t, 63, first.KcalPer100g, 0.001)
	assert.InDelta(t, 11, first.ProteinPer100g, 0.001, "string nutriments are coerced")
	assert.Equal(t, "https://de.openfoodfacts.org/product/4012345", first.URL)
	assert.Equal(t, nutrition.SourceTypeRegional, first.SourceType)

	second := got[1]
	assert.Equal(t, "de:skyr/Skyr Drink", second.ID, "codeless products get a query-scoped id")
	assert.Contains(t, second.URL, "search_terms=skyr", "codeless products link to the search query")
}

func TestOpenFoodFactsSearch_GlobalHost(t *testing.T) {
	doer := &mockDoer{doFunc: func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "world.openfoodfacts.org", req.URL.Host)
		return jsonResponse(`{"products": []}`), nil
	}}

	src := NewGlobalOpenFoodFacts(doer)
	got, err := src.Search(context.Background(), "rice", 8)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, nutrition.SourceTypeGlobal, src.Type())
}

func TestOpenFoodFactsSearch_NonOKStatus(t *testing.T) {
	doer := &mockDoer{doFunc: func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusTooManyRequests,
			Body:       io.NopCloser(bytes.NewBufferString("slow down")),
		}, nil
	}}

	src := NewRegionalOpenFoodFacts("de", doer)
	_, err := src.Search(context.Background(), "skyr", 8)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestOpenFoodFactsSearch_RespectsLimit(t *testing.T) {
	const body = `{
		"products": [
			{"code": "1", "product_name": "Rice A", "nutriments": {"energy-kcal_100g": 130, "proteins_100g": 2.7, "carbohydrates_100g": 28, "fat_100g": 0.3}},
			{"code": "2", "product_name": "Rice B", "nutriments": {"energy-kcal_100g": 131, "proteins_100g": 2.8, "carbohydrates_100g": 28, "fat_100g": 0.3}},
			{"code": "3", "product_name": "Rice C", "nutriments": {"energy-kcal_100g": 132, "proteins_100g": 2.9, "carbohydrates_100g": 28, "fat_100g": 0.3}}
		]
	}`
	doer := &mockDoer{doFunc: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(body), nil
	}}

	src := NewGlobalOpenFoodFacts(doer)
	got, err := src.Search(context.Background(), "rice", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
