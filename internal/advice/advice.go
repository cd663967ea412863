// Package advice produces AI budgeting advice from an owner's recent
// spending. Premium only.
package advice

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"google.golang.org/genai"

	"finledger/internal/billing"
	"finledger/internal/core"
	"finledger/internal/ledger"
)

const DefaultModelName = "gemini-2.0-flash"

// Entitlements is satisfied by billing.Service.
type Entitlements interface {
	IsEntitled(ctx context.Context, ownerID string) (bool, error)
}

// Generator turns a prompt into advice text. The genai client satisfies
// it in production; tests use a canned fake.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type GenAIGenerator struct {
	client *genai.Client
	model  string
}

// NewGenAIGenerator builds a Gemini-backed generator. Credentials come
// from the environment (GEMINI_API_KEY).
func NewGenAIGenerator(ctx context.Context, model string) (*GenAIGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &GenAIGenerator{client: client, model: model}, nil
}

func (g *GenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

type Service struct {
	store        ledger.Store
	entitlements Entitlements
	gen          Generator
}

func NewService(store ledger.Store, entitlements Entitlements, gen Generator) *Service {
	return &Service{store: store, entitlements: entitlements, gen: gen}
}

// Budget summarizes the owner's spending between from and to and asks the
// model for budgeting advice. Owners without an active subscription get
// billing.ErrNotEntitled.
func (s *Service) Budget(ctx context.Context, ownerID string, from, to time.Time) (string, error) {
	ok, err := s.entitlements.IsEntitled(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("check entitlement: %w", err)
	}
	if !ok {
		return "", billing.ErrNotEntitled
	}

	ts, err := s.store.ListTransactions(ctx, ownerID, ledger.TransactionFilter{From: from, To: to})
	if err != nil {
		return "", fmt.Errorf("list transactions: %w", err)
	}
	if len(ts) == 0 {
		return "", fmt.Errorf("%w: no transactions in the requested period", core.ErrInvalidArgument)
	}
	categories, err := s.store.ListCategories(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("list categories: %w", err)
	}

	prompt := buildPrompt(ts, categories, from, to)
	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("budgeting advice: %w", err)
	}
	slog.InfoContext(ctx, "Budgeting advice generated", "owner_id", ownerID, "transactions", len(ts))
	return text, nil
}

// buildPrompt condenses the period into per-category totals. Only totals
// leave the system; payees and notes stay local.
func buildPrompt(ts []core.Transaction, categories []core.Category, from, to time.Time) string {
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	totals := make(map[string]int64)
	var income, spend int64
	for _, t := range ts {
		name := names[t.CategoryID]
		if name == "" {
			name = "Uncategorized"
		}
		totals[name] += t.Amount
		if t.Amount >= 0 {
			income += t.Amount
		} else {
			spend += t.Amount
		}
	}

	lines := make([]string, 0, len(totals))
	for name, total := range totals {
		lines = append(lines, fmt.Sprintf("- %s: %s", name, core.DecimalFromMilliUnits(total).StringFixed(2)))
	}
	sort.Strings(lines)

	var b strings.Builder
	b.WriteString("You are a personal-finance assistant.\n\n")
	fmt.Fprintf(&b, "Period: %s to %s\n", from.Format("2006-01-02"), to.Format("2006-01-02"))
	fmt.Fprintf(&b, "Total income: %s\n", core.DecimalFromMilliUnits(income).StringFixed(2))
	fmt.Fprintf(&b, "Total spending: %s\n\n", core.DecimalFromMilliUnits(spend).StringFixed(2))
	b.WriteString("Net amount per category:\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\nGive three short, concrete budgeting suggestions based on these numbers. Plain text only.")
	return b.String()
}
