package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/SAP-F-2025/certification-service/internal/clients/openai"
	"github.com/SAP-F-2025/certification-service/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	verdictSchemaName = "integrity_verdict"
	verdictSchemaURL  = "https://certification.local/schemas/integrity_verdict.json"
)

// verdictSchema is sent to the backend as the response format and used to
// validate the reply before it is trusted.
const verdictSchema = `{
  "type": "object",
  "properties": {
    "integrity_score": {"type": "integer", "minimum": 0, "maximum": 100},
    "suspicious_patterns": {"type": "array", "items": {"type": "string"}},
    "recommendation": {"type": "string", "enum": ["pass", "flag", "fail"]},
    "reasoning": {"type": "string"}
  },
  "required": ["integrity_score", "suspicious_patterns", "recommendation", "reasoning"],
  "additionalProperties": false
}`

const reasoningInstructions = `You review proctoring telemetry from a timed AI-safety certification exam.
Judge whether the candidate's behavior indicates a compromised attempt.
Recommend "pass" when the record is consistent with honest work, "flag" when a
human should review it, and "fail" when the attempt should not be certified.
Name each suspicious pattern briefly. Explain your recommendation in reasoning.`

// maxPromptEvents bounds the event lines sent to the backend.
const maxPromptEvents = 200

// ReasoningClassifier delegates classification to an external reasoning model.
type ReasoningClassifier struct {
	client    openai.Client
	schema    *jsonschema.Schema
	schemaDoc map[string]any
	logger    *slog.Logger
}

func NewReasoningClassifier(client openai.Client, logger *slog.Logger) (*ReasoningClassifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(verdictSchemaURL, strings.NewReader(verdictSchema)); err != nil {
		return nil, fmt.Errorf("add verdict schema: %w", err)
	}
	schema, err := compiler.Compile(verdictSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile verdict schema: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(verdictSchema), &doc); err != nil {
		return nil, fmt.Errorf("decode verdict schema: %w", err)
	}

	return &ReasoningClassifier{
		client:    client,
		schema:    schema,
		schemaDoc: doc,
		logger:    logger.With("component", "reasoning_classifier"),
	}, nil
}

func (c *ReasoningClassifier) Classify(ctx context.Context, input *AnalysisInput) (*AnalysisResult, error) {
	raw, err := c.client.GenerateJSON(ctx, reasoningInstructions, buildAnalysisPrompt(input), verdictSchemaName, c.schemaDoc)
	if err != nil {
		return nil, err
	}

	if err := c.schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("reply does not match verdict schema: %w", err)
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var result AnalysisResult
	if err := json.Unmarshal(encoded, &result); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}

	c.logger.DebugContext(ctx, "Reasoning verdict received",
		"session_id", input.SessionID,
		"recommendation", result.Recommendation,
		"patterns", len(result.SuspiciousPatterns))
	return &result, nil
}

func buildAnalysisPrompt(input *AnalysisInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Certification tier: %s\n", input.Tier)
	fmt.Fprintf(&b, "Scheduled duration: %s\n", input.Duration.Round(time.Minute))
	fmt.Fprintf(&b, "Rule-based integrity score: %d/100 (%d penalized events)\n",
		input.IntegrityScore, input.FlaggedEventCount)
	fmt.Fprintf(&b, "Severity counts: low=%d medium=%d high=%d critical=%d\n",
		countSeverity(input.Events, models.SeverityLow),
		countSeverity(input.Events, models.SeverityMedium),
		countSeverity(input.Events, models.SeverityHigh),
		countSeverity(input.Events, models.SeverityCritical))

	if len(input.Events) == 0 {
		b.WriteString("No proctoring events were recorded.\n")
		return b.String()
	}

	b.WriteString("Events in order (timestamp | type | severity | description):\n")
	for i, e := range input.Events {
		if i == maxPromptEvents {
			fmt.Fprintf(&b, "... %d more events omitted\n", len(input.Events)-maxPromptEvents)
			break
		}
		fmt.Fprintf(&b, "%s | %s | %s | %s\n",
			e.Timestamp.UTC().Format(time.RFC3339), e.Type, e.Severity, strings.TrimSpace(e.Description))
	}
	return b.String()
}
