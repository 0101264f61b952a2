package engine

import (
	"testing"

	"complyscan/internal/output"
)

func TestTracker_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []Stage
		wantErr bool
	}{
		{name: "full run", path: []Stage{StageFetching, StageAcquiring, StageExtracting, StageEvaluating, StageComplete}},
		{name: "abort while fetching", path: []Stage{StageFetching, StageAborted}},
		{name: "abort while extracting", path: []Stage{StageFetching, StageAcquiring, StageExtracting, StageAborted}},
		{name: "backwards", path: []Stage{StageFetching, StageAcquiring, StageFetching}, wantErr: true},
		{name: "repeat", path: []Stage{StageFetching, StageFetching}, wantErr: true},
		{name: "after complete", path: []Stage{StageFetching, StageAcquiring, StageExtracting, StageEvaluating, StageComplete, StageAborted}, wantErr: true},
		{name: "after abort", path: []Stage{StageFetching, StageAborted, StageAcquiring}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &tracker{}
			var err error
			for _, s := range tt.path {
				if err = tr.advance(s); err != nil {
					break
				}
			}
			if tt.wantErr && err == nil {
				t.Fatalf("expected invalid transition error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestTracker_ReportsStages(t *testing.T) {
	obs := &recordingObserver{}
	tr := &tracker{obs: obs, url: "https://shop.example/p"}

	if err := tr.advance(StageFetching); err != nil {
		t.Fatalf("advance returned error: %v", err)
	}
	tr.productID = "prod_1"
	if err := tr.advance(StageAcquiring); err != nil {
		t.Fatalf("advance returned error: %v", err)
	}

	evs := obs.events("stage.changed")
	if len(evs) != 2 {
		t.Fatalf("expected 2 stage events, got %d", len(evs))
	}
	want := output.Event{Type: "stage.changed", ProductID: "prod_1", URL: "https://shop.example/p", Stage: "Acquiring"}
	if evs[1] != want {
		t.Fatalf("unexpected event: %+v", evs[1])
	}
	if evs[0].ProductID != "" {
		t.Fatalf("expected no product id before fetch, got %q", evs[0].ProductID)
	}
}

func TestStage_Terminal(t *testing.T) {
	for _, s := range []Stage{StageFetching, StageAcquiring, StageExtracting, StageEvaluating} {
		if s.Terminal() {
			t.Fatalf("%s must not be terminal", s)
		}
	}
	if !StageComplete.Terminal() || !StageAborted.Terminal() {
		t.Fatalf("Complete and Aborted must be terminal")
	}
}
