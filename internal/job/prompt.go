package job

import (
	"context"

	"github.com/mtb-technology/reportflow/internal/report"
	"github.com/mtb-technology/reportflow/internal/stage"
)

// PromptBuilder turns a report and a stage definition into the prompt text
// for that stage's invocation. Prompt construction is a caller concern; the
// scheduler only requires that it yields a string.
//
// latestConcept carries the content of the current latest concept snapshot,
// empty when the report has no versions yet.
type PromptBuilder interface {
	Build(ctx context.Context, r *report.Report, def stage.Stage, latestConcept string) (string, error)
}

// PromptBuilderFunc adapts a function to the PromptBuilder interface.
type PromptBuilderFunc func(ctx context.Context, r *report.Report, def stage.Stage, latestConcept string) (string, error)

// Build implements PromptBuilder.
func (f PromptBuilderFunc) Build(ctx context.Context, r *report.Report, def stage.Stage, latestConcept string) (string, error) {
	return f(ctx, r, def, latestConcept)
}
