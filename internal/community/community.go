// Package community groups a child's graph into one community per interest
// dimension and summarizes each.
package community

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/floortime-memory/internal/graph"
	"github.com/ajitpratap0/floortime-memory/internal/llm"
	"github.com/ajitpratap0/floortime-memory/internal/models"
	"github.com/ajitpratap0/floortime-memory/pkg/xmlutil"
)

const (
	// maxSummaryFacts caps the facts shown to the summarizer, newest kept.
	maxSummaryFacts  = 20
	summaryMaxTokens = 256
)

const summarySystemPrompt = `You summarize a child's engagement with one developmental interest dimension for a floor-time clinician.
Write two or three plain sentences. Mention what the child did and how engaged they were. Do not invent facts beyond those given.`

// Report summarizes a rebuild.
type Report struct {
	Communities int `json:"communities"`
	Members     int `json:"members"`
	Summarized  int `json:"summarized"`
}

// Manager rebuilds and lists communities.
type Manager struct {
	store  graph.Store
	llm    llm.Completer
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a community manager. A nil completer produces
// deterministic digests instead of model summaries.
func NewManager(st graph.Store, completer llm.Completer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  st,
		llm:    completer,
		logger: logger,
		now:    time.Now,
	}
}

// List returns the namespace's communities.
func (m *Manager) List(ctx context.Context, ns string) ([]models.Community, error) {
	cs, err := m.store.ListCommunities(ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("listing communities: %w", err)
	}
	return cs, nil
}

// Rebuild replaces the namespace's communities. Each InterestDimension with
// at least one active fact becomes a community whose members are the
// dimension and every entity sharing an active fact with it.
func (m *Manager) Rebuild(ctx context.Context, ns string) (*Report, error) {
	entities, err := m.store.ListEntities(ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	edges, err := m.store.ListEdges(ctx, ns, false)
	if err != nil {
		return nil, fmt.Errorf("listing edges: %w", err)
	}

	dims := make(map[string]models.InterestDimension)
	for _, e := range entities {
		if e.Type != models.EntityTypeInterestDimension {
			continue
		}
		if d, ok := models.ParseDimension(e.Name); ok {
			dims[e.UUID] = d
		}
	}

	type group struct {
		members map[string]struct{}
		facts   []string
	}
	groups := make(map[models.InterestDimension]*group)
	attach := func(dimUUID, other, fact string) {
		d, ok := dims[dimUUID]
		if !ok {
			return
		}
		g := groups[d]
		if g == nil {
			g = &group{members: map[string]struct{}{dimUUID: {}}}
			groups[d] = g
		}
		g.members[other] = struct{}{}
		g.facts = append(g.facts, fact)
	}
	for _, e := range edges {
		attach(e.TargetUUID, e.SourceUUID, e.Fact)
		attach(e.SourceUUID, e.TargetUUID, e.Fact)
	}

	report := &Report{}
	now := m.now().UTC()
	communities := make([]models.Community, 0, len(groups))
	for _, d := range models.AllDimensions {
		g := groups[d]
		if g == nil {
			continue
		}
		members := make([]string, 0, len(g.members))
		for id := range g.members {
			members = append(members, id)
		}
		sort.Strings(members)

		summary, summarized := m.summarize(ctx, d, g.facts)
		if summarized {
			report.Summarized++
		}
		communities = append(communities, models.Community{
			UUID:        uuid.New().String(),
			Namespace:   ns,
			Name:        string(d),
			Summary:     summary,
			MemberUUIDs: members,
			CreatedAt:   now,
		})
		report.Members += len(members)
	}
	report.Communities = len(communities)

	if err := m.store.ReplaceCommunities(ctx, ns, communities); err != nil {
		return nil, fmt.Errorf("replacing communities: %w", err)
	}
	m.logger.Info("communities rebuilt", "namespace", ns,
		"communities", report.Communities, "members", report.Members, "summarized", report.Summarized)
	return report, nil
}

// summarize asks the small model for a summary and falls back to a digest.
// The bool reports whether the model produced the summary.
func (m *Manager) summarize(ctx context.Context, d models.InterestDimension, facts []string) (string, bool) {
	if len(facts) > maxSummaryFacts {
		facts = facts[len(facts)-maxSummaryFacts:]
	}
	if m.llm == nil {
		return digest(d, facts), false
	}
	prompt := xmlutil.Tag("dimension", string(d)) + "\n<facts>\n" + xmlutil.TagLines("fact", facts) + "\n</facts>"
	text, err := m.llm.Complete(ctx, llm.Request{
		System:    summarySystemPrompt,
		Prompt:    prompt,
		MaxTokens: summaryMaxTokens,
		Small:     true,
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		m.logger.Warn("community summary failed, using digest", "dimension", d, "error", err)
		return digest(d, facts), false
	}
	return text, true
}

func digest(d models.InterestDimension, facts []string) string {
	noun := "facts"
	if len(facts) == 1 {
		noun = "fact"
	}
	return fmt.Sprintf("%s: %d active %s. Latest: %s", d, len(facts), noun, facts[len(facts)-1])
}
