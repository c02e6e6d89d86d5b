package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"google.golang.org/genai"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// Category is one entry of the user-visible category taxonomy.
type Category struct {
	ID        string
	Name      string
	Financial domain.FinancialCategory
}

// CategoryLister supplies the active taxonomy the classifier may choose
// from. Implemented by the ledger stores.
type CategoryLister interface {
	ListCategories(ctx context.Context) ([]Category, error)
}

// taxonomyCacheKey and taxonomyTTL control how long the category list is
// reused between classifier calls.
const (
	taxonomyCacheKey = "taxonomy"
	taxonomyTTL      = 10 * time.Minute
)

// GeminiClassifier assigns categories to transactions with a Gemini model.
// Every failure mode returns an error the caller degrades to
// "uncategorized"; the classifier never decides batch fate.
type GeminiClassifier struct {
	model string
	repo  CategoryLister
	cache *gocache.Cache
}

// NewGeminiClassifier creates a classifier using the given model name and
// taxonomy source.
func NewGeminiClassifier(model string, repo CategoryLister) *GeminiClassifier {
	return &GeminiClassifier{
		model: model,
		repo:  repo,
		cache: gocache.New(taxonomyTTL, 2*taxonomyTTL),
	}
}

// Classify sends the batch to the model and returns one category ID per
// transaction, "" where the model declined or answered off-taxonomy.
func (g *GeminiClassifier) Classify(ctx context.Context, txs []*domain.NormalizedTransaction) ([]string, error) {
	if len(txs) == 0 {
		return nil, nil
	}

	categories, err := g.taxonomy(ctx)
	if err != nil {
		return nil, fmt.Errorf("Classify: loading taxonomy: %w", err)
	}

	prompt := buildClassifyPrompt(categories, txs)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("Classify: create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("Classify: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("Classify: empty response from model")
	}

	var ids []string
	if err := json.Unmarshal([]byte(cleanModelJSON(rawText)), &ids); err != nil {
		return nil, fmt.Errorf("Classify: unmarshal JSON: %w\nraw response: %s", err, rawText)
	}
	if len(ids) != len(txs) {
		return nil, fmt.Errorf("Classify: model returned %d ids for %d transactions", len(ids), len(txs))
	}

	// Off-taxonomy answers become "", never a made-up category.
	valid := make(map[string]bool, len(categories))
	for _, c := range categories {
		valid[c.ID] = true
	}
	for i, id := range ids {
		if !valid[id] {
			ids[i] = ""
		}
	}

	return ids, nil
}

func (g *GeminiClassifier) taxonomy(ctx context.Context) ([]Category, error) {
	if cached, ok := g.cache.Get(taxonomyCacheKey); ok {
		return cached.([]Category), nil
	}
	categories, err := g.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	g.cache.Set(taxonomyCacheKey, categories, gocache.DefaultExpiration)
	return categories, nil
}

// buildClassifyPrompt lists the taxonomy and the transactions, and pins the
// output contract to a strict JSON array of category ids.
func buildClassifyPrompt(categories []Category, txs []*domain.NormalizedTransaction) string {
	var b strings.Builder
	b.WriteString("You are a bank transaction categorizer.\n\n")
	b.WriteString("Use ONLY the following category ids:\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "- %s (%s)\n", c.ID, c.Name)
	}
	b.WriteString("\nTransactions (one per line: index, direction, amount, description):\n")
	for i, tx := range txs {
		desc := tx.Title
		if tx.Notes != "" {
			desc += " / " + tx.Notes
		}
		fmt.Fprintf(&b, "%d. %s %s %q\n", i, tx.Direction, tx.Amount.StringFixed(2), desc)
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Output STRICT JSON only: a JSON array of strings, one per transaction, in input order.\n")
	b.WriteString("- Each string must be one of the category ids above, or \"\" if unsure.\n")
	b.WriteString("- Do NOT wrap the response in code fences.\n")
	b.WriteString("- Output must begin with \"[\" and end with \"]\".\n")
	return b.String()
}

// cleanModelJSON strips Markdown fences and surrounding junk the model may
// emit despite instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
