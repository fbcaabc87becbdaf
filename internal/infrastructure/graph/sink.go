// Package graph projects committed results into Neo4j:
//
//	(:Document {id})-[:MENTIONS]->(:Entity {text, label})
//	(:Document {id})-[:DUE_ON]->(:Deadline {date})
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/infrastructure/resilience"
	"github.com/kirillkom/legal-lens/internal/infrastructure/stages/nextsteps"
)

type statement struct {
	cypher string
	params map[string]any
}

// writer runs statements in one write transaction.
type writer interface {
	write(ctx context.Context, statements []statement) error
}

type Sink struct {
	writer   writer
	executor *resilience.Executor
	logger   *slog.Logger
	closeFn  func(context.Context) error
}

type Options struct {
	Database string
	Executor *resilience.Executor
	Logger   *slog.Logger
}

// Connect opens a driver and verifies connectivity before returning the sink.
func Connect(ctx context.Context, uri, user, password string, opts Options) (*Sink, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}

	sink := newSink(&driverWriter{driver: driver, database: opts.Database}, opts)
	sink.closeFn = driver.Close
	if err := sink.writer.write(ctx, schemaStatements()); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("ensure neo4j constraints: %w", err)
	}
	return sink, nil
}

func newSink(w writer, opts Options) *Sink {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{writer: w, executor: opts.Executor, logger: logger}
}

func (s *Sink) Close(ctx context.Context) error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn(ctx)
}

func schemaStatements() []statement {
	return []statement{
		{cypher: "CREATE CONSTRAINT document_id IF NOT EXISTS FOR (d:Document) REQUIRE d.id IS UNIQUE"},
		{cypher: "CREATE CONSTRAINT deadline_date IF NOT EXISTS FOR (x:Deadline) REQUIRE x.date IS UNIQUE"},
	}
}

// Project replaces the document's MENTIONS and DUE_ON edges with those of result.
func (s *Sink) Project(ctx context.Context, documentID string, result domain.Result) error {
	entities, deadlines, err := projection(result)
	if err != nil {
		return err
	}

	statements := []statement{
		{
			cypher: "MERGE (d:Document {id: $id})",
			params: map[string]any{"id": documentID},
		},
		{
			cypher: "MATCH (d:Document {id: $id})-[r:MENTIONS|DUE_ON]->() DELETE r",
			params: map[string]any{"id": documentID},
		},
		{
			cypher: `MATCH (d:Document {id: $id})
UNWIND $entities AS e
MERGE (n:Entity {text: e.text, label: e.label})
MERGE (d)-[:MENTIONS]->(n)`,
			params: map[string]any{"id": documentID, "entities": entities},
		},
		{
			cypher: `MATCH (d:Document {id: $id})
UNWIND $deadlines AS date
MERGE (x:Deadline {date: date})
MERGE (d)-[:DUE_ON]->(x)`,
			params: map[string]any{"id": documentID, "deadlines": deadlines},
		},
	}
	if err := s.run(ctx, resilience.OpGraphProject, statements); err != nil {
		return fmt.Errorf("project document graph: %w", err)
	}
	s.logger.Debug("graph_projected", "document_id", documentID, "entities", len(entities), "deadlines", len(deadlines))
	return nil
}

// Remove deletes the document node and entities no other document mentions.
func (s *Sink) Remove(ctx context.Context, documentID string) error {
	statements := []statement{
		{
			cypher: "MATCH (d:Document {id: $id}) DETACH DELETE d",
			params: map[string]any{"id": documentID},
		},
		{cypher: "MATCH (n:Entity) WHERE NOT (n)<-[:MENTIONS]-() DELETE n"},
		{cypher: "MATCH (x:Deadline) WHERE NOT (x)<-[:DUE_ON]-() DELETE x"},
	}
	if err := s.run(ctx, resilience.OpGraphRemove, statements); err != nil {
		return fmt.Errorf("remove document graph: %w", err)
	}
	return nil
}

func (s *Sink) run(ctx context.Context, operation string, statements []statement) error {
	call := func(callCtx context.Context) error {
		return s.writer.write(callCtx, statements)
	}
	if s.executor == nil {
		return call(ctx)
	}
	return s.executor.Execute(ctx, operation, call, classifyNeo4jError)
}

// projection reads entities and deadlines from a successful next-steps outcome.
// Deadlines are stored as ISO dates when they parse.
func projection(result domain.Result) ([]map[string]any, []string, error) {
	entities := make([]map[string]any, 0)
	deadlines := make([]string, 0)
	if !result.NextSteps.IsOK() {
		return entities, deadlines, nil
	}

	var payload struct {
		Deadlines []string          `json:"deadlines"`
		Entities  []json.RawMessage `json:"entities"`
	}
	if err := json.Unmarshal(result.NextSteps.Payload, &payload); err != nil {
		return nil, nil, fmt.Errorf("decode next steps payload: %w", err)
	}

	for _, raw := range payload.Entities {
		var pair []string
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 || pair[0] == "" {
			continue
		}
		entities = append(entities, map[string]any{"text": pair[0], "label": pair[1]})
	}
	seen := make(map[string]struct{}, len(payload.Deadlines))
	for _, d := range payload.Deadlines {
		date := d
		if t, ok := nextsteps.ParseDeadline(d); ok {
			date = t.Format("2006-01-02")
		}
		if _, dup := seen[date]; dup {
			continue
		}
		seen[date] = struct{}{}
		deadlines = append(deadlines, date)
	}
	return entities, deadlines, nil
}
