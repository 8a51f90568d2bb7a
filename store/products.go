package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"mealagent/nutrition"
)

// Product is one row of the local product reference table.
type Product struct {
	ID          string
	Name        string
	Brand       string
	KcalPer100g float64
	Protein100g float64
	Carbs100g   float64
	Fat100g     float64
	URL         string
}

// ReplaceProducts replaces the local product reference table with the given
// catalog. Used at startup to seed from a catalog artifact.
func (s *Store) ReplaceProducts(ctx context.Context, products []Product) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM products`); err != nil {
			return fmt.Errorf("clear products: %w", err)
		}
		for _, p := range products {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO products (id, name, brand, kcal_100g, protein_100g, carbs_100g, fat_100g, url)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, p.ID, p.Name, p.Brand, p.KcalPer100g, p.Protein100g, p.Carbs100g, p.Fat100g, p.URL)
			if err != nil {
				return fmt.Errorf("insert product: %w", err)
			}
		}
		return nil
	})
}

// SearchProducts matches products whose name or brand contains any token of
// the query, in table order.
func (s *Store) SearchProducts(ctx context.Context, name string, limit int) ([]nutrition.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, brand, kcal_100g, protein_100g, carbs_100g, fat_100g, url
		FROM products
	`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	tokens := nutrition.Tokenize(name)
	var out []nutrition.Candidate
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Brand, &p.KcalPer100g, &p.Protein100g, &p.Carbs100g, &p.Fat100g, &p.URL); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if !productMatches(p, tokens) {
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
	return out, rows.Err()
}

func productMatches(p Product, tokens []string) bool {
	haystack := strings.ToLower(p.Name + " " + p.Brand)
	for _, t := range tokens {
		if strings.Contains(haystack, t) {
			return true
		}
	}
	return false
}
