package vision

import (
	"testing"

	"gocv.io/x/gocv"
)

func TestCalcBorderPenaltyZeroWellInsideFrame(t *testing.T) {
	corners := []gocv.Point2f{
		{X: 100, Y: 100}, {X: 140, Y: 100}, {X: 140, Y: 140}, {X: 100, Y: 140},
	}
	if got := calcBorderPenalty(corners, 800); got != 0 {
		t.Errorf("expected zero border penalty for centered quad, got %f", got)
	}
}

func TestCalcBorderPenaltyPositiveNearEdge(t *testing.T) {
	corners := []gocv.Point2f{
		{X: 0, Y: 0}, {X: 20, Y: 0}, {X: 20, Y: 20}, {X: 0, Y: 20},
	}
	if got := calcBorderPenalty(corners, 800); got <= 0 {
		t.Errorf("expected positive border penalty for edge-touching quad, got %f", got)
	}
}

func TestCalcDecodeMarginSquareIsOne(t *testing.T) {
	corners := []gocv.Point2f{
		{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10},
	}
	got := calcDecodeMargin(corners)
	if got < 0.99 {
		t.Errorf("expected decode margin ~1.0 for a perfect square, got %f", got)
	}
}

func TestCalcDecodeMarginLowForSkewedQuad(t *testing.T) {
	corners := []gocv.Point2f{
		{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 5}, {X: 0, Y: 5},
	}
	got := calcDecodeMargin(corners)
	if got >= 0.5 {
		t.Errorf("expected low decode margin for elongated quad, got %f", got)
	}
}

func TestBetterCandidatePrefersMoreUniqueIDs(t *testing.T) {
	few := []rawTagDetection{{id: 1, score: 100}}
	many := []rawTagDetection{{id: 1, score: 1}, {id: 2, score: 1}}
	if !betterCandidate(many, few) {
		t.Error("expected candidate with more unique ids to win regardless of score")
	}
	if betterCandidate(few, many) {
		t.Error("fewer unique ids must not beat more unique ids")
	}
}

func TestBetterCandidateTiesBrokenByScore(t *testing.T) {
	lowScore := []rawTagDetection{{id: 1, score: 1}}
	highScore := []rawTagDetection{{id: 1, score: 5}}
	if !betterCandidate(highScore, lowScore) {
		t.Error("expected equal-unique-id candidate with higher total score to win")
	}
}

func TestResolveConflictsSameCellKeepsHighestScore(t *testing.T) {
	dets := []rawTagDetection{
		{id: 5, row: 2, col: 3, score: 10},
		{id: 9, row: 2, col: 3, score: 25},
	}
	final, conflicts := resolveConflicts(dets)

	if len(final) != 1 {
		t.Fatalf("expected exactly one surviving detection, got %d", len(final))
	}
	if final[0].id != 9 {
		t.Errorf("expected detection id 9 (higher score) to survive, got %d", final[0].id)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected exactly one conflict logged, got %d", len(conflicts))
	}
	if conflicts[0].Reason != "duplicate_cell" {
		t.Errorf("expected duplicate_cell conflict reason, got %q", conflicts[0].Reason)
	}
}

func TestResolveConflictsSameIDDifferentCellsKeepsHighestScore(t *testing.T) {
	dets := []rawTagDetection{
		{id: 7, row: 0, col: 0, score: 3},
		{id: 7, row: 4, col: 4, score: 8},
	}
	final, conflicts := resolveConflicts(dets)

	if len(final) != 1 {
		t.Fatalf("expected exactly one surviving detection, got %d", len(final))
	}
	if final[0].row != 4 || final[0].col != 4 {
		t.Errorf("expected the higher-score cell (4,4) to survive, got (%d,%d)", final[0].row, final[0].col)
	}

	found := false
	for _, c := range conflicts {
		if c.Reason == "duplicate_id" {
			found = true
		}
	}
	if !found {
		t.Error("expected a duplicate_id conflict to be logged")
	}
}

func TestResolveConflictsNoConflictPassesThrough(t *testing.T) {
	dets := []rawTagDetection{
		{id: 1, row: 0, col: 0, score: 5},
		{id: 2, row: 1, col: 1, score: 5},
	}
	final, conflicts := resolveConflicts(dets)

	if len(final) != 2 {
		t.Fatalf("expected both detections to survive, got %d", len(final))
	}
	if len(conflicts) != 0 {
		t.Errorf("expected no conflicts, got %d", len(conflicts))
	}
}

func TestDefaultAllowedTagIDsCoversThirtyTwo(t *testing.T) {
	ids := DefaultAllowedTagIDs()
	if len(ids) != 32 {
		t.Fatalf("expected 32 allowed ids, got %d", len(ids))
	}
	if ids[0] {
		t.Error("id 0 is reserved for board corners, must not be allowed as a piece tag")
	}
	if !ids[1] || !ids[32] {
		t.Error("expected ids 1 and 32 to be allowed")
	}
}
