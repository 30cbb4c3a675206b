package pipeline

import "github.com/medcopilot/medcopilot/pkg/models"

// Build returns the stages a session runs, in catalog order. Each
// descriptor's predicate is evaluated once; entries are filtered, never
// reordered.
func Build(intake models.Intake, hasImages bool) []StageDescriptor {
	return BuildFor(models.Conditions{
		HasImages:    hasImages,
		HasLabValues: intake.HasLabValues(),
	})
}

// BuildFor is Build over already-derived conditions.
func BuildFor(c models.Conditions) []StageDescriptor {
	out := make([]StageDescriptor, 0, len(catalog))
	for _, d := range catalog {
		if d.Include(c) {
			out = append(out, d)
		}
	}
	return out
}

// Names returns the stage names of a built pipeline.
func Names(stages []StageDescriptor) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return names
}
