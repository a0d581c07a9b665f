// Package memorytool registers the memory engine's eight operations as MCP
// tools, plus the context:// and entity://{name} resources, against a
// [github.com/modelcontextprotocol/go-sdk/mcp.Server].
//
// Each tool follows the same shape: a JSON-decodable *Args struct and a
// handler closure that decodes input, delegates to the matching
// [pkg/engine.Engine] method, and marshals the result struct straight back
// as the tool's text content. The package carries no business logic of its
// own beyond argument decoding and delegation.
package memorytool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/karrolcia/hippocampus-go/pkg/engine"
)

// Register adds all eight memory tools and both resource handlers to
// server, delegating to eng.
func Register(server *mcpsdk.Server, eng *engine.Engine) {
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "remember",
		Description: "Store a new fact about an entity, deduplicating against similar existing facts and auto-detecting relationships to other known entities mentioned by name.",
	}, makeRememberHandler(eng))

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "recall",
		Description: "Search remembered facts by semantic similarity and keyword match, fused into a single ranked list.",
	}, makeRecallHandler(eng))

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "context",
		Description: "Assemble everything known about a topic: its observations, direct relationships, and related entities out to a given depth.",
	}, makeContextHandler(eng))

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "update",
		Description: "Replace one exact existing fact about an entity with new content.",
	}, makeUpdateHandler(eng))

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "forget",
		Description: "Delete a single fact by id, or an entire entity and everything attached to it by name.",
	}, makeForgetHandler(eng))

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "merge",
		Description: "Combine several facts belonging to the same entity into one new fact, removing the originals.",
	}, makeMergeHandler(eng))

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "consolidate",
		Description: "Identify clusters of near-duplicate facts (optionally scoped to one entity) as merge candidates. Read-only.",
	}, makeConsolidateHandler(eng))

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "export",
		Description: "Export the knowledge graph (or a scoped subset) as json, claude-md, or markdown.",
	}, makeExportHandler(eng))

	server.AddResource(&mcpsdk.Resource{
		URI:      "context://",
		Name:     "Full memory graph",
		MIMEType: "text/markdown",
	}, makeContextResourceHandler(eng))

	server.AddResourceTemplate(&mcpsdk.ResourceTemplate{
		URITemplate: "entity://{name}",
		Name:        "Single-entity context",
		MIMEType:    "text/markdown",
	}, makeEntityResourceHandler(eng))
}

// jsonResult marshals v and wraps it as a tool's single text content block.
func jsonResult(v any) (*mcpsdk.CallToolResult, any, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("memorytool: encode result: %w", err)
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(body)}},
	}, nil, nil
}

// rememberArgs is the JSON-decoded input for the "remember" tool.
type rememberArgs struct {
	Content string `json:"content"`
	Entity  string `json:"entity,omitempty"`
	Type    string `json:"type,omitempty"`
	Source  string `json:"source,omitempty"`
}

func makeRememberHandler(eng *engine.Engine) mcpsdk.ToolHandlerFor[rememberArgs, any] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, a rememberArgs) (*mcpsdk.CallToolResult, any, error) {
		res, err := eng.Remember(ctx, engine.RememberInput{Content: a.Content, Entity: a.Entity, Type: a.Type, Source: a.Source})
		if err != nil {
			return nil, nil, fmt.Errorf("memorytool: remember: %w", err)
		}
		return jsonResult(res)
	}
}

// recallArgs is the JSON-decoded input for the "recall" tool.
type recallArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
	Type  string `json:"type,omitempty"`
	Since string `json:"since,omitempty"`
}

func makeRecallHandler(eng *engine.Engine) mcpsdk.ToolHandlerFor[recallArgs, any] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, a recallArgs) (*mcpsdk.CallToolResult, any, error) {
		since, err := parseSince(a.Since)
		if err != nil {
			return nil, nil, fmt.Errorf("memorytool: recall: %w", err)
		}
		res, err := eng.Recall(ctx, engine.RecallInput{Query: a.Query, Limit: a.Limit, Type: a.Type, Since: since})
		if err != nil {
			return nil, nil, fmt.Errorf("memorytool: recall: %w", err)
		}
		return jsonResult(res)
	}
}

// contextArgs is the JSON-decoded input for the "context" tool.
type contextArgs struct {
	Topic string `json:"topic"`
	Depth *int   `json:"depth,omitempty"`
}

func makeContextHandler(eng *engine.Engine) mcpsdk.ToolHandlerFor[contextArgs, any] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, a contextArgs) (*mcpsdk.CallToolResult, any, error) {
		depth := engine.DefaultContextDepth
		if a.Depth != nil {
			depth = *a.Depth
		}
		res, err := eng.Context(ctx, engine.ContextInput{Topic: a.Topic, Depth: depth})
		if err != nil {
			return nil, nil, fmt.Errorf("memorytool: context: %w", err)
		}
		return jsonResult(res)
	}
}

// updateArgs is the JSON-decoded input for the "update" tool.
type updateArgs struct {
	Entity     string `json:"entity"`
	OldContent string `json:"old_content"`
	NewContent string `json:"new_content"`
}

func makeUpdateHandler(eng *engine.Engine) mcpsdk.ToolHandlerFor[updateArgs, any] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, a updateArgs) (*mcpsdk.CallToolResult, any, error) {
		res, err := eng.Update(ctx, engine.UpdateInput{Entity: a.Entity, OldContent: a.OldContent, NewContent: a.NewContent})
		if err != nil {
			return nil, nil, fmt.Errorf("memorytool: update: %w", err)
		}
		return jsonResult(res)
	}
}

// forgetArgs is the JSON-decoded input for the "forget" tool.
type forgetArgs struct {
	Entity        string `json:"entity,omitempty"`
	ObservationID string `json:"observation_id,omitempty"`
}

func makeForgetHandler(eng *engine.Engine) mcpsdk.ToolHandlerFor[forgetArgs, any] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, a forgetArgs) (*mcpsdk.CallToolResult, any, error) {
		res, err := eng.Forget(ctx, engine.ForgetInput{Entity: a.Entity, ObservationID: a.ObservationID})
		if err != nil {
			return nil, nil, fmt.Errorf("memorytool: forget: %w", err)
		}
		return jsonResult(res)
	}
}

// mergeArgs is the JSON-decoded input for the "merge" tool.
type mergeArgs struct {
	ObservationIDs []string `json:"observation_ids"`
	Content        string   `json:"content"`
}

func makeMergeHandler(eng *engine.Engine) mcpsdk.ToolHandlerFor[mergeArgs, any] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, a mergeArgs) (*mcpsdk.CallToolResult, any, error) {
		res, err := eng.Merge(ctx, engine.MergeInput{ObservationIDs: a.ObservationIDs, Content: a.Content})
		if err != nil {
			return nil, nil, fmt.Errorf("memorytool: merge: %w", err)
		}
		return jsonResult(res)
	}
}

// consolidateArgs is the JSON-decoded input for the "consolidate" tool.
type consolidateArgs struct {
	Entity    string  `json:"entity,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

func makeConsolidateHandler(eng *engine.Engine) mcpsdk.ToolHandlerFor[consolidateArgs, any] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, a consolidateArgs) (*mcpsdk.CallToolResult, any, error) {
		res, err := eng.Consolidate(ctx, engine.ConsolidateInput{Entity: a.Entity, Threshold: a.Threshold})
		if err != nil {
			return nil, nil, fmt.Errorf("memorytool: consolidate: %w", err)
		}
		return jsonResult(res)
	}
}

// exportArgs is the JSON-decoded input for the "export" tool.
type exportArgs struct {
	Format string `json:"format"`
	Entity string `json:"entity,omitempty"`
	Type   string `json:"type,omitempty"`
}

func makeExportHandler(eng *engine.Engine) mcpsdk.ToolHandlerFor[exportArgs, any] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, a exportArgs) (*mcpsdk.CallToolResult, any, error) {
		res, err := eng.Export(ctx, engine.ExportInput{Format: a.Format, Entity: a.Entity, Type: a.Type})
		if err != nil {
			return nil, nil, fmt.Errorf("memorytool: export: %w", err)
		}
		return jsonResult(res)
	}
}

// makeContextResourceHandler renders the full knowledge graph in claude-md
// format for the static context:// resource.
func makeContextResourceHandler(eng *engine.Engine) mcpsdk.ResourceHandler {
	return func(ctx context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
		res, err := eng.Export(ctx, engine.ExportInput{Format: engine.FormatClaudeMD})
		if err != nil {
			return nil, fmt.Errorf("memorytool: context resource: %w", err)
		}
		return &mcpsdk.ReadResourceResult{
			Contents: []*mcpsdk.ResourceContents{
				{URI: "context://", MIMEType: "text/markdown", Text: res.Text},
			},
		}, nil
	}
}

// entityResourcePrefix is the scheme portion of an entity://{name} URI.
const entityResourcePrefix = "entity://"

// makeEntityResourceHandler renders a single entity's observations,
// relationships, and depth-1 neighbors as Markdown for entity://{name}.
func makeEntityResourceHandler(eng *engine.Engine) mcpsdk.ResourceHandler {
	return func(ctx context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
		raw := strings.TrimPrefix(req.Params.URI, entityResourcePrefix)
		name, err := url.PathUnescape(raw)
		if err != nil {
			return nil, fmt.Errorf("memorytool: entity resource: decode name: %w", err)
		}

		res, err := eng.Context(ctx, engine.ContextInput{Topic: name, Depth: 1})
		if err != nil {
			return nil, fmt.Errorf("memorytool: entity resource: %w", err)
		}
		if !res.Success {
			return nil, fmt.Errorf("memorytool: entity resource: %s", res.Message)
		}

		return &mcpsdk.ReadResourceResult{
			Contents: []*mcpsdk.ResourceContents{
				{URI: req.Params.URI, MIMEType: "text/markdown", Text: renderEntityMarkdown(res)},
			},
		}, nil
	}
}

// renderEntityMarkdown formats a single entity's context as Markdown for
// the entity://{name} resource.
func renderEntityMarkdown(res engine.ContextResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s (%s)\n\n", res.EntityName, res.EntityType))

	sb.WriteString("## Observations\n\n")
	for _, o := range res.Observations {
		sb.WriteString("- " + o.Content + "\n")
	}

	if len(res.Relationships) > 0 {
		neighborNames := make(map[string]string, len(res.RelatedEntities))
		for _, n := range res.RelatedEntities {
			neighborNames[n.ID] = n.Name
		}

		sb.WriteString("\n## Relationships\n\n")
		for _, r := range res.Relationships {
			otherID := r.ToEntity
			if otherID == res.EntityID {
				otherID = r.FromEntity
			}
			name, ok := neighborNames[otherID]
			if !ok {
				name = otherID
			}
			sb.WriteString(fmt.Sprintf("- %s (%s)\n", name, r.RelationType))
		}
	}

	if len(res.RelatedEntities) > 0 {
		sb.WriteString("\n## Related entities\n\n")
		for _, n := range res.RelatedEntities {
			sb.WriteString(fmt.Sprintf("- %s (%s, depth %d)\n", n.Name, n.Type, n.Depth))
		}
	}

	return sb.String()
}

// parseSince parses an optional RFC 3339 timestamp, returning the zero
// time for an empty string.
func parseSince(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse since %q: %w", s, err)
	}
	return t, nil
}
