package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mtb-technology/reportflow/internal/job"
	"github.com/mtb-technology/reportflow/internal/report"
	"github.com/mtb-technology/reportflow/internal/stage"
)

// stageInstructions holds the per-stage task framing. The pipeline core
// treats prompt text as a caller concern, so the CLI owns these.
var stageInstructions = map[stage.StageID]string{
	stage.StageCompletenessCheck: "Check whether the dossier contains every input needed to draft the report. " +
		"If anything essential is missing, start your answer with the word INCOMPLETE followed by the list of missing items. " +
		"Otherwise start with COMPLETE.",
	stage.StageEscalation: "The dossier is incomplete. Draft a short, client-ready message listing the missing " +
		"information and why each item is needed.",
	stage.StageComplexityAssessment: "Assess the complexity of this case: the number of scenarios, special " +
		"arrangements, and regulatory considerations involved. Summarize your assessment in a few sentences.",
	stage.StageGeneration:    "Write the full concept report based on the dossier. Use clear section headings.",
	stage.StageReviewSources: "Review the concept strictly for source fidelity: flag every claim not backed by the dossier.",
	stage.StageReviewTechnical: "Review the concept for technical correctness of calculations, figures, and " +
		"scheme-specific rules.",
	stage.StageReviewScenarioGaps:    "Review the concept for missing scenarios or alternatives the client should be shown.",
	stage.StageReviewLegal:           "Review the concept for legal and compliance issues.",
	stage.StageReviewCommunication:   "Review the concept for tone, structure, and readability for the client.",
	stage.StageEditor:                "Apply the reviewer's findings to the concept and produce the revised document.",
	stage.StageChangeSummary:         "Summarize what changed between this concept and the previous version.",
	stage.StageExecutiveBriefing:     "Write a one-page executive briefing of the report for the advisor.",
}

// promptBuilder is the CLI's default prompt construction: stage instruction,
// dossier as JSON, and the current concept when one exists.
type promptBuilder struct{}

func newPromptBuilder() job.PromptBuilder {
	return promptBuilder{}
}

// Build implements job.PromptBuilder.
func (promptBuilder) Build(ctx context.Context, r *report.Report, def stage.Stage, latestConcept string) (string, error) {
	instruction, ok := stageInstructions[def.ID]
	if !ok {
		return "", fmt.Errorf("no instruction defined for stage %s", def.ID)
	}

	var sb strings.Builder
	sb.WriteString(instruction)
	sb.WriteString("\n\n## Report\nTitle: ")
	sb.WriteString(r.Title)
	sb.WriteString("\n")

	if len(r.DossierData) > 0 {
		dossier, err := json.MarshalIndent(r.DossierData, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode dossier: %w", err)
		}
		sb.WriteString("\n## Dossier\n")
		sb.Write(dossier)
		sb.WriteString("\n")
	}

	if latestConcept != "" {
		sb.WriteString("\n## Current concept\n")
		sb.WriteString(latestConcept)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}
