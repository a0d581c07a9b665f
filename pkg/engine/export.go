package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/karrolcia/hippocampus-go/internal/observe"
	"github.com/karrolcia/hippocampus-go/pkg/repository"
)

// Export format identifiers.
const (
	FormatJSON     = "json"
	FormatClaudeMD = "claude-md"
	FormatMarkdown = "markdown"
)

// ExportInput scopes an export to a single entity or to one type; when
// Entity is set, Type is ignored. Both empty exports the whole graph.
type ExportInput struct {
	Format string
	Entity string
	Type   string
}

// ExportedObservation is the JSON shape of a single observation within
// [ExportedEntity].
type ExportedObservation struct {
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ExportedEntity is the JSON shape of a single entity within
// [ExportData].
type ExportedEntity struct {
	Name         string                `json:"name"`
	Type         string                `json:"type"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	Observations []ExportedObservation `json:"observations"`
}

// ExportedRelationship is the JSON shape of a single relationship within
// [ExportData].
type ExportedRelationship struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// ExportData is the JSON export payload.
type ExportData struct {
	ExportedAt    time.Time               `json:"exported_at"`
	Entities      []ExportedEntity        `json:"entities"`
	Relationships []ExportedRelationship  `json:"relationships"`
}

// entityBundle groups an entity with its observations and relationships
// while rendering an export.
type entityBundle struct {
	entity        repository.Entity
	observations  []repository.Observation
	relationships []repository.Relationship
}

// ExportResult is the outcome of a [Engine.Export] call.
type ExportResult struct {
	Success          bool
	Format           string
	EntityCount      int
	ObservationCount int
	JSON             *ExportData
	Text             string
	Message          string
}

// Export renders the knowledge graph (or the subset matching Entity/Type)
// in the requested format. json returns a structured payload; claude-md
// and markdown return rendered text.
func (e *Engine) Export(ctx context.Context, in ExportInput) (ExportResult, error) {
	start := time.Now()
	outcome := observe.OutcomeOK
	defer func() {
		e.metrics.RecordOperation(ctx, observe.OpExport, outcome, time.Since(start).Seconds())
	}()

	entities, err := e.exportScope(ctx, in.Entity, in.Type)
	if err != nil {
		outcome = observe.OutcomeError
		return ExportResult{}, fmt.Errorf("engine: export: %w", err)
	}

	bundles := make([]entityBundle, 0, len(entities))
	relByID := make(map[string]repository.Relationship)
	obsCount := 0

	for _, ent := range entities {
		obs, err := e.observations.ListByEntity(ctx, ent.ID)
		if err != nil {
			outcome = observe.OutcomeError
			return ExportResult{}, fmt.Errorf("engine: export: list observations for %q: %w", ent.Name, err)
		}
		rels, err := e.relationships.ListByEntity(ctx, ent.ID)
		if err != nil {
			outcome = observe.OutcomeError
			return ExportResult{}, fmt.Errorf("engine: export: list relationships for %q: %w", ent.Name, err)
		}
		for _, r := range rels {
			relByID[r.ID] = r
		}
		bundles = append(bundles, entityBundle{entity: ent, observations: obs, relationships: rels})
		obsCount += len(obs)
	}

	switch in.Format {
	case FormatJSON, "":
		byID := make(map[string]string, len(entities))
		for _, ent := range entities {
			byID[ent.ID] = ent.Name
		}

		data := ExportData{ExportedAt: time.Now().UTC()}
		for _, b := range bundles {
			exportedObs := make([]ExportedObservation, len(b.observations))
			for i, o := range b.observations {
				exportedObs[i] = ExportedObservation{Content: o.Content, Source: o.Source, CreatedAt: o.CreatedAt}
			}
			data.Entities = append(data.Entities, ExportedEntity{
				Name:         b.entity.Name,
				Type:         b.entity.Type,
				CreatedAt:    b.entity.CreatedAt,
				UpdatedAt:    b.entity.UpdatedAt,
				Observations: exportedObs,
			})
		}
		for _, r := range relByID {
			data.Relationships = append(data.Relationships, ExportedRelationship{
				From: byID[r.FromEntity],
				To:   byID[r.ToEntity],
				Type: r.RelationType,
			})
		}
		sort.Slice(data.Entities, func(i, j int) bool { return data.Entities[i].Name < data.Entities[j].Name })

		return ExportResult{
			Success:          true,
			Format:           FormatJSON,
			EntityCount:      len(entities),
			ObservationCount: obsCount,
			JSON:             &data,
		}, nil

	case FormatClaudeMD:
		text := renderClaudeMD(bundles)
		return ExportResult{Success: true, Format: FormatClaudeMD, EntityCount: len(entities), ObservationCount: obsCount, Text: text}, nil

	case FormatMarkdown:
		byID := make(map[string]string, len(entities))
		for _, ent := range entities {
			byID[ent.ID] = ent.Name
		}
		text := renderMarkdown(bundles, byID)
		return ExportResult{Success: true, Format: FormatMarkdown, EntityCount: len(entities), ObservationCount: obsCount, Text: text}, nil

	default:
		outcome = observe.OutcomeInvalid
		return ExportResult{Success: false, Message: fmt.Sprintf("unknown export format %q", in.Format)}, nil
	}
}

// exportScope returns the entities an export call should cover: a single
// named entity, all entities of a type, or everything.
func (e *Engine) exportScope(ctx context.Context, entity, entityType string) ([]repository.Entity, error) {
	if entity != "" {
		ent, err := e.entities.GetByName(ctx, entity)
		if err != nil {
			return nil, nil
		}
		return []repository.Entity{ent}, nil
	}
	return e.entities.Find(ctx, repository.EntityFilter{Type: entityType, Limit: 1_000_000})
}

func renderClaudeMD(bundles []entityBundle) string {
	byType := make(map[string][]int)
	for i, b := range bundles {
		typ := b.entity.Type
		if typ == "" {
			typ = "General"
		}
		byType[typ] = append(byType[typ], i)
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	var sb strings.Builder
	sb.WriteString("# Memory Export\n\n")
	for _, typ := range types {
		sb.WriteString("## " + capitalize(typ) + "\n\n")
		idxs := byType[typ]
		sort.Slice(idxs, func(i, j int) bool { return bundles[idxs[i]].entity.Name < bundles[idxs[j]].entity.Name })
		for _, idx := range idxs {
			b := bundles[idx]
			sb.WriteString("### " + b.entity.Name + "\n\n")
			for _, o := range b.observations {
				sb.WriteString("- " + o.Content + "\n")
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func renderMarkdown(bundles []entityBundle, byID map[string]string) string {
	var sb strings.Builder
	sb.WriteString("# Hippocampus Memory Export\n\n")
	sb.WriteString("Generated: " + time.Now().UTC().Format(time.RFC3339) + "\n\n")

	for i, b := range bundles {
		sb.WriteString(fmt.Sprintf("## %s (%s)\n\n", b.entity.Name, b.entity.Type))
		for _, o := range b.observations {
			line := "- " + o.Content
			if !o.CreatedAt.IsZero() || o.Source != "" {
				var meta []string
				if !o.CreatedAt.IsZero() {
					meta = append(meta, o.CreatedAt.UTC().Format("2006-01-02"))
				}
				if o.Source != "" {
					meta = append(meta, "source: "+o.Source)
				}
				line += " [" + strings.Join(meta, ", ") + "]"
			}
			sb.WriteString(line + "\n")
		}

		if len(b.relationships) > 0 {
			sb.WriteString("\n### Relationships\n\n")
			for _, r := range b.relationships {
				sb.WriteString(fmt.Sprintf("- %s -> %s (%s)\n", byID[r.FromEntity], byID[r.ToEntity], r.RelationType))
			}
		}

		if i < len(bundles)-1 {
			sb.WriteString("\n---\n\n")
		} else {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
