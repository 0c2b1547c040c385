package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SearchResult is one match from a keyword query, scored by how many
// times the query terms occur in the record's serialized payload.
type SearchResult struct {
	Category  string    `json:"category"`
	ID        string    `json:"id"`
	Relevance int       `json:"relevance"`
	Snippet   string    `json:"snippet,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// searchTargets maps each category to the column holding its
// searchable text.
var searchTargets = []struct {
	category string
	idExpr   string
	textCol  string
}{
	{"specifications", "id", "payload"},
	{"execution_results", "id", "payload"},
	{"agents", "id", "payload"},
	{"agent_interactions", "CAST(id AS TEXT)", "content"},
	{"task_executions", "id", "payload"},
	{"decisions", "id", "payload"},
	{"patterns", "id", "payload"},
}

// Query searches every category for the given terms, case-insensitive.
// Relevance is the total number of term occurrences; results come back
// sorted by relevance descending and truncated to limit.
func (b *Bank) Query(text string, limit int) ([]SearchResult, error) {
	terms := strings.Fields(strings.ToLower(text))
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	var results []SearchResult
	for _, target := range searchTargets {
		// Candidate pre-filter in SQL, exact scoring in Go.
		conds := make([]string, len(terms))
		args := make([]any, len(terms))
		for i, term := range terms {
			conds[i] = fmt.Sprintf("instr(lower(%s), ?) > 0", target.textCol)
			args[i] = term
		}
		query := fmt.Sprintf(
			"SELECT %s, %s, created_at FROM %s WHERE %s",
			target.idExpr, target.textCol, target.category, strings.Join(conds, " OR "))

		rows, err := b.db.Query(query, args...)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", target.category, err)
		}

		for rows.Next() {
			var id, body string
			var createdAt time.Time
			if err := rows.Scan(&id, &body, &createdAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s: %w", target.category, err)
			}
			lowered := strings.ToLower(body)
			relevance := 0
			for _, term := range terms {
				relevance += strings.Count(lowered, term)
			}
			if relevance == 0 {
				continue
			}
			results = append(results, SearchResult{
				Category:  target.category,
				ID:        id,
				Relevance: relevance,
				Snippet:   snippet(body, 200),
				CreatedAt: createdAt,
			})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("search %s: %w", target.category, err)
		}
		rows.Close()
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
