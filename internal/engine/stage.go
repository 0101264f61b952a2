package engine

import (
	"fmt"
	"log/slog"

	"complyscan/internal/output"
)

// Stage is a step of the per-submission pipeline.
type Stage string

const (
	StageFetching   Stage = "Fetching"
	StageAcquiring  Stage = "Acquiring"
	StageExtracting Stage = "Extracting"
	StageEvaluating Stage = "Evaluating"
	StageComplete   Stage = "Complete"
	StageAborted    Stage = "Aborted"
)

func (s Stage) rank() int {
	switch s {
	case StageFetching:
		return 1
	case StageAcquiring:
		return 2
	case StageExtracting:
		return 3
	case StageEvaluating:
		return 4
	case StageComplete, StageAborted:
		return 5
	}
	return 0
}

// Terminal reports whether no further transition is allowed.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageAborted
}

// Observer receives lifecycle events, rule results and finished records.
// *output.Manager satisfies it.
type Observer interface {
	Write(v any) error
}

// tracker moves one submission strictly forward through the stages and
// reports every transition.
type tracker struct {
	obs       Observer
	url       string
	productID string
	stage     Stage
}

func (t *tracker) advance(next Stage) error {
	if t.stage.Terminal() || (next != StageAborted && next.rank() <= t.stage.rank()) {
		return fmt.Errorf("invalid stage transition %s -> %s", t.stage, next)
	}
	t.stage = next
	slog.Debug("scan stage", "url", t.url, "product_id", t.productID, "stage", string(next))
	t.emit(output.Event{Type: "stage.changed", ProductID: t.productID, URL: t.url, Stage: string(next)})
	return nil
}

func (t *tracker) emit(v any) {
	if t.obs == nil {
		return
	}
	if err := t.obs.Write(v); err != nil {
		slog.Warn("observer write failed", "error", err)
	}
}
