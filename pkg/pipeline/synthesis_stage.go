package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inquiryos/inquiryos/ent"
	"github.com/inquiryos/inquiryos/ent/researchstep"
	"github.com/inquiryos/inquiryos/ent/source"
	"github.com/inquiryos/inquiryos/pkg/llm"
	"github.com/inquiryos/inquiryos/pkg/services"
	"github.com/inquiryos/inquiryos/pkg/webfetch"
)

const (
	// evidencePerSourceChars caps one source's contribution to the prompt.
	evidencePerSourceChars = 1800

	// evidenceTotalChars caps the whole evidence context.
	evidenceTotalChars = 14000

	// synthesisMaxTokens bounds the completion length.
	synthesisMaxTokens = 900

	// lowCoverageRatio is the threshold below which an answer citing few
	// distinct sources is flagged.
	lowCoverageRatio = 0.4
)

const synthesisPromptTemplate = `You are a research synthesizer. Answer the research question using ONLY the numbered sources below.

Research question: %s

Sources:
%s

Respond with a single JSON object and nothing else, with exactly these keys:
  "summary": string, 2-4 sentences answering the question.
  "key_points": array of strings, each ending with source citations like [1] or [2][3].
  "risks": array of strings, caveats or open questions, each with citations.
  "recommendation": string, one actionable recommendation.
  "confidence": number between 0 and 1.

Cite sources by their bracketed numbers. Do not invent sources.`

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// synthesisPayload is the structured answer demanded from the model.
type synthesisPayload struct {
	Summary        string   `json:"summary"`
	KeyPoints      []string `json:"key_points"`
	Risks          []string `json:"risks"`
	Recommendation string   `json:"recommendation"`
	Confidence     float64  `json:"confidence"`
}

// RunSynthesis executes the real synthesizer stage: prompts the LLM
// with numbered source evidence, validates the structured completion,
// enforces citation quality, and persists the Answer. On success the
// run transitions to completed.
func (o *Orchestrator) RunSynthesis(ctx context.Context, runID string) error {
	tx, err := o.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	run, err := loadRun(ctx, tx.ResearchRun, runID)
	if err != nil {
		return err
	}
	if err := checkStagePreconditions(ctx, tx.ResearchStep, runID, researchstep.StepTypeSynthesizer); err != nil {
		return err
	}

	sources, err := tx.Source.Query().
		Where(source.RunIDEQ(runID)).
		Order(ent.Asc(source.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}
	if len(sources) == 0 {
		return services.NewInvalidStateError("No sources available for synthesis.")
	}

	prompt := fmt.Sprintf(synthesisPromptTemplate, run.Query, buildEvidence(sources))

	started := time.Now()
	completion, err := o.llm.Generate(ctx, prompt, llm.Options{MaxTokens: synthesisMaxTokens})
	if err != nil {
		return fmt.Errorf("synthesis completion failed: %w", err)
	}

	payload, parseErr := parseSynthesisCompletion(completion)
	warnings, cited, coverage := enforceCitations(&payload, len(sources))

	meta := map[string]interface{}{
		"raw_completion":       completion,
		"parse_error":          nil,
		"source_count":         len(sources),
		"unique_sources_cited": len(cited),
		"coverage_ratio":       coverage,
	}
	if parseErr != "" {
		meta["parse_error"] = parseErr
	}

	output := map[string]interface{}{
		"summary":        payload.Summary,
		"key_points":     payload.KeyPoints,
		"risks":          payload.Risks,
		"recommendation": payload.Recommendation,
		"confidence":     payload.Confidence,
		"_meta":          meta,
	}
	if len(warnings) > 0 {
		output["_warnings"] = warnings
	}

	sourceIDs := make([]string, 0, len(sources))
	for _, src := range sources {
		sourceIDs = append(sourceIDs, src.ID)
	}

	nextIndex, err := nextStepIndex(ctx, tx.ResearchStep, runID)
	if err != nil {
		return err
	}

	if _, err := tx.ResearchStep.Create().
		SetID(uuid.New().String()).
		SetRunID(runID).
		SetStepIndex(nextIndex).
		SetStepType(researchstep.StepTypeSynthesizer).
		SetStatus(researchstep.StatusCompleted).
		SetStartedAt(started).
		SetCompletedAt(time.Now()).
		SetInput(map[string]interface{}{"source_ids": sourceIDs}).
		SetOutput(output).
		Save(ctx); err != nil {
		return stepCreateError(err, researchstep.StepTypeSynthesizer)
	}

	citations := make(map[string][]string, len(cited))
	for _, n := range cited {
		citations[strconv.Itoa(n)] = []string{sources[n-1].ID}
	}
	if _, err := tx.Answer.Create().
		SetID(uuid.New().String()).
		SetRunID(runID).
		SetContent(answerProse(payload)).
		SetCitations(citations).
		Save(ctx); err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}

	if err := completeRun(ctx, tx, runID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// buildEvidence renders numbered evidence blocks for the prompt,
// preferring full page text over the summary.
func buildEvidence(sources []*ent.Source) string {
	blocks := make([]string, 0, len(sources))
	for i, src := range sources {
		evidence := ""
		if src.RawContent != nil && *src.RawContent != "" {
			evidence = *src.RawContent
		} else if src.Summary != nil {
			evidence = *src.Summary
		}
		evidence = strings.TrimSpace(webfetch.TruncateChars(evidence, evidencePerSourceChars))
		blocks = append(blocks, fmt.Sprintf("[%d] %s\nURL: %s\nEVIDENCE: %s", i+1, titleOrURL(src), src.URL, evidence))
	}
	return webfetch.TruncateChars(strings.Join(blocks, "\n\n"), evidenceTotalChars)
}

// parseSynthesisCompletion decodes the completion into a synthesis
// payload. On JSON or schema failure it substitutes the degraded
// payload and reports the reason.
func parseSynthesisCompletion(completion string) (synthesisPayload, string) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(completion), &probe); err != nil {
		return degradedPayload("Failed to parse model output as JSON."), fmt.Sprintf("invalid JSON: %v", err)
	}

	for _, key := range []string{"summary", "key_points", "risks", "recommendation", "confidence"} {
		if _, ok := probe[key]; !ok {
			return degradedPayload("Model output did not match the expected schema."), fmt.Sprintf("missing key %q", key)
		}
	}

	var payload synthesisPayload
	if err := json.Unmarshal([]byte(completion), &payload); err != nil {
		return degradedPayload("Model output did not match the expected schema."), fmt.Sprintf("schema mismatch: %v", err)
	}
	if payload.Confidence < 0 || payload.Confidence > 1 {
		return degradedPayload("Model output did not match the expected schema."), fmt.Sprintf("confidence %v outside [0, 1]", payload.Confidence)
	}

	if payload.KeyPoints == nil {
		payload.KeyPoints = []string{}
	}
	if payload.Risks == nil {
		payload.Risks = []string{}
	}
	return payload, ""
}

func degradedPayload(summary string) synthesisPayload {
	return synthesisPayload{
		Summary:        summary,
		KeyPoints:      []string{},
		Risks:          []string{},
		Recommendation: "Inspect _meta.raw_completion and retry synthesis.",
		Confidence:     0.2,
	}
}

// enforceCitations applies the citation quality rules, lowering the
// payload's confidence when they fail. Returns the warning list, the
// distinct in-range cited source numbers in ascending order, and the
// coverage ratio.
func enforceCitations(p *synthesisPayload, sourceCount int) ([]map[string]interface{}, []int, float64) {
	warnings := make([]map[string]interface{}, 0)

	var missing []string
	for i, kp := range p.KeyPoints {
		if !citationPattern.MatchString(kp) {
			missing = append(missing, fmt.Sprintf("key_points[%d]", i))
		}
	}
	for i, r := range p.Risks {
		if !citationPattern.MatchString(r) {
			missing = append(missing, fmt.Sprintf("risks[%d]", i))
		}
	}
	if len(missing) > 0 {
		warnings = append(warnings, map[string]interface{}{"type": "missing_citations", "fields": missing})
		if p.Confidence > 0.3 {
			p.Confidence = 0.3
		}
	}

	seen := make(map[int]bool)
	for _, text := range append(append([]string{}, p.KeyPoints...), p.Risks...) {
		for _, match := range citationPattern.FindAllStringSubmatch(text, -1) {
			n, err := strconv.Atoi(match[1])
			if err != nil || n < 1 || n > sourceCount {
				continue
			}
			seen[n] = true
		}
	}
	cited := make([]int, 0, len(seen))
	for n := range seen {
		cited = append(cited, n)
	}
	sort.Ints(cited)

	coverage := 0.0
	if sourceCount > 0 {
		coverage = float64(len(cited)) / float64(sourceCount)
	}
	if sourceCount >= 3 && coverage < lowCoverageRatio {
		warnings = append(warnings, map[string]interface{}{"type": "low_source_coverage", "coverage_ratio": coverage})
		if p.Confidence > 0.4 {
			p.Confidence = 0.4
		}
	}

	return warnings, cited, coverage
}

// answerProse flattens the structured payload into the Answer content.
func answerProse(p synthesisPayload) string {
	var b strings.Builder
	b.WriteString(p.Summary)
	if len(p.KeyPoints) > 0 {
		b.WriteString("\n\nKey points:\n")
		for _, kp := range p.KeyPoints {
			b.WriteString("- ")
			b.WriteString(kp)
			b.WriteByte('\n')
		}
	}
	if len(p.Risks) > 0 {
		b.WriteString("\nRisks:\n")
		for _, r := range p.Risks {
			b.WriteString("- ")
			b.WriteString(r)
			b.WriteByte('\n')
		}
	}
	if p.Recommendation != "" {
		b.WriteString("\nRecommendation: ")
		b.WriteString(p.Recommendation)
	}
	return strings.TrimSpace(b.String())
}

// RunDummySynthesis executes the synthesizer stage without an LLM
// call, emitting a templated answer over the attached sources.
func (o *Orchestrator) RunDummySynthesis(ctx context.Context, runID string) error {
	tx, err := o.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	run, err := loadRun(ctx, tx.ResearchRun, runID)
	if err != nil {
		return err
	}
	if err := checkStagePreconditions(ctx, tx.ResearchStep, runID, researchstep.StepTypeSynthesizer); err != nil {
		return err
	}

	sources, err := tx.Source.Query().
		Where(source.RunIDEQ(runID)).
		Order(ent.Asc(source.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}

	answerText := dummyAnswerText(run.Query, sources)

	sourceIDs := make([]string, 0, len(sources))
	for _, src := range sources {
		sourceIDs = append(sourceIDs, src.ID)
	}

	nextIndex, err := nextStepIndex(ctx, tx.ResearchStep, runID)
	if err != nil {
		return err
	}

	now := time.Now()
	if _, err := tx.ResearchStep.Create().
		SetID(uuid.New().String()).
		SetRunID(runID).
		SetStepIndex(nextIndex).
		SetStepType(researchstep.StepTypeSynthesizer).
		SetStatus(researchstep.StatusCompleted).
		SetStartedAt(now).
		SetCompletedAt(now).
		SetInput(map[string]interface{}{"source_ids": sourceIDs}).
		SetOutput(map[string]interface{}{
			"answer":       answerText,
			"notes":        "Dummy synthesizer v0 – no real LLM call performed.",
			"source_count": len(sources),
		}).
		Save(ctx); err != nil {
		return stepCreateError(err, researchstep.StepTypeSynthesizer)
	}

	if _, err := tx.Answer.Create().
		SetID(uuid.New().String()).
		SetRunID(runID).
		SetContent(answerText).
		Save(ctx); err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}

	if err := completeRun(ctx, tx, runID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func dummyAnswerText(query string, sources []*ent.Source) string {
	if len(sources) == 0 {
		return "No sources are currently attached to this research run. Run the searcher agent first to collect relevant sources."
	}

	lines := []string{
		"This is a dummy synthesized answer based on the attached sources.",
		"",
		fmt.Sprintf("Research question: %s", query),
		"",
		"The system considered the following sources:",
	}
	for i, src := range sources {
		lines = append(lines, fmt.Sprintf("%d. %s — %s", i+1, titleOrURL(src), src.URL))
	}
	lines = append(lines,
		"",
		"A proper LLM-backed synthesizer will later read and compare these sources in detail to produce a nuanced, citation-rich answer.",
	)
	return strings.Join(lines, "\n")
}
