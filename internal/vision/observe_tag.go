package vision

import (
	"math"
	"sort"

	"github.com/otbreview/otbreview/internal/domain"
	"gocv.io/x/gocv"
)

// rawTagDetection is one candidate-path detection before conflict
// resolution, carrying its corner quad for border/margin scoring.
type rawTagDetection struct {
	id            int
	row, col      int
	center        gocv.Point2f
	area          float64
	corners       []gocv.Point2f
	borderPenalty float64
	decodeMargin  float64
	score         float64
}

// ObserveTag implements component C.2: multi-preprocessing-candidate
// ArUco detection, best-candidate selection, and two-stage conflict
// resolution (cell-first, then id-first).
func ObserveTag(board gocv.Mat, frameIdx int, side int, allowedIDs map[int]bool) domain.TagObs {
	cell := float64(side) / 8.0
	minArea := float64(side) * float64(side) * 0.0005

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(board, &gray, gocv.ColorBGRToGray)

	highlightRatio := highlightPixelRatio(gray)

	candidates := []struct {
		name  string
		image gocv.Mat
		scale float64
	}{
		{"enhanced", preprocessClaheDenoise(gray), 1.0},
		{"upsampled", preprocessUpscale(1.4)(gray), 1.4},
		{"upsampled2", preprocessUpscale(1.8)(gray), 1.8},
		{"threshold", preprocessAdaptiveThreshold(gray), 1.0},
		{"otsu", preprocessOtsuEqualized(gray), 1.0},
	}

	var warnings []string
	if highlightRatio > 0.25 {
		warnings = append(warnings, "high glare ratio, trying threshold path")
	}

	var best []rawTagDetection
	bestName := ""

	for _, c := range candidates {
		dets := detectOnCandidate(c.image, c.scale, allowedIDs, minArea, cell, side)
		c.image.Close()

		if betterCandidate(dets, best) {
			best = dets
			bestName = c.name
		}
	}

	if bestName == "threshold" {
		warnings = append(warnings, "threshold path auto-selected, possible glare")
	}
	if highlightRatio > 0.02 {
		warnings = append(warnings, "glare detected, adjust lighting or camera angle")
	}

	finalDets, conflicts := resolveConflicts(best)

	var ids [8][8]int
	for _, d := range finalDets {
		ids[d.row][d.col] = d.id
	}

	uniqueCount := len(finalDets)
	if uniqueCount < 20 {
		warnings = append(warnings, "LOW_TAGS")
	}
	if highlightRatio > 0.25 {
		warnings = append(warnings, "GLARE")
	}

	return domain.TagObs{
		Frame:      frameIdx,
		IDs:        ids,
		Detections: toDomainDetections(finalDets),
		Warnings:   warnings,
		Conflicts:  conflicts,
	}
}

func betterCandidate(dets, best []rawTagDetection) bool {
	uniqueDets := uniqueIDCount(dets)
	uniqueBest := uniqueIDCount(best)

	if uniqueDets != uniqueBest {
		return uniqueDets > uniqueBest
	}
	if len(dets) != len(best) {
		return len(dets) > len(best)
	}
	return totalScore(dets) > totalScore(best)
}

func uniqueIDCount(dets []rawTagDetection) int {
	seen := make(map[int]bool, len(dets))
	for _, d := range dets {
		seen[d.id] = true
	}
	return len(seen)
}

func totalScore(dets []rawTagDetection) float64 {
	var s float64
	for _, d := range dets {
		s += d.score
	}
	return s
}

func detectOnCandidate(img gocv.Mat, scale float64, allowedIDs map[int]bool, minArea, cell float64, size int) []rawTagDetection {
	dictionary := gocv.GetPredefinedDictionary(gocv.ArucoDictionaryCode(arucoDict5x5_100))
	params := gocv.NewArucoDetectorParameters()
	params.SetMinMarkerPerimeterRate(0.014)
	params.SetCornerRefinementMethod(gocv.ArucoCornerRefineSubpix)
	params.SetCornerRefinementWinSize(4)

	detector := gocv.NewArucoDetectorWithParams(dictionary, params)
	defer detector.Close()

	corners, ids, _ := detector.DetectMarkers(img)

	var out []rawTagDetection
	for i, id := range ids {
		if allowedIDs != nil && !allowedIDs[id] {
			continue
		}
		if i >= len(corners) {
			continue
		}

		scaled := make([]gocv.Point2f, len(corners[i]))
		for j, p := range corners[i] {
			scaled[j] = gocv.Point2f{X: p.X / float32(scale), Y: p.Y / float32(scale)}
		}

		area := quadArea(scaled)
		if area < minArea {
			continue
		}

		c := centroid(scaled)
		col := int(clampInt(int(float64(c.X)/cell), 0, 7))
		row := int(clampInt(int(float64(c.Y)/cell), 0, 7))

		borderPenalty := calcBorderPenalty(scaled, size)
		decodeMargin := calcDecodeMargin(scaled)
		score := area * (1 - borderPenalty) * decodeMargin

		out = append(out, rawTagDetection{
			id: id, row: row, col: col, center: c, area: area,
			corners: scaled, borderPenalty: borderPenalty,
			decodeMargin: decodeMargin, score: score,
		})
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func calcBorderPenalty(corners []gocv.Point2f, size int) float64 {
	minX, maxX := corners[0].X, corners[0].X
	minY, maxY := corners[0].Y, corners[0].Y
	for _, p := range corners {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	s := float64(size)
	minBorder := math.Min(math.Min(float64(minX), s-float64(maxX)), math.Min(float64(minY), s-float64(maxY)))
	safeMargin := math.Max(s/100.0, 1.0)
	if minBorder >= safeMargin {
		return 0
	}
	return math.Max(0, 1.0-minBorder/safeMargin)
}

func calcDecodeMargin(corners []gocv.Point2f) float64 {
	if len(corners) < 4 {
		return 0.1
	}
	var lengths [4]float64
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		dx := float64(corners[i].X - corners[j].X)
		dy := float64(corners[i].Y - corners[j].Y)
		lengths[i] = math.Sqrt(dx*dx + dy*dy)
	}
	maxLen, minLen := lengths[0], lengths[0]
	for _, l := range lengths {
		if l > maxLen {
			maxLen = l
		}
		if l < minLen {
			minLen = l
		}
	}
	squareness := minLen / (maxLen + 1e-6)
	return math.Max(0.1, math.Min(1.0, squareness))
}

// resolveConflicts applies the two-stage resolution from spec.md §4.C.2
// step 4: same-cell multi-id keep-highest-score, then same-id
// multi-cell keep-highest-score.
func resolveConflicts(dets []rawTagDetection) ([]rawTagDetection, []domain.TagConflict) {
	var conflicts []domain.TagConflict

	byCell := make(map[[2]int]rawTagDetection)
	// Deterministic order keeps conflict logs reproducible.
	sorted := append([]rawTagDetection(nil), dets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id < sorted[j].id })

	for _, d := range sorted {
		key := [2]int{d.row, d.col}
		prev, ok := byCell[key]
		if !ok || d.score > prev.score {
			if ok {
				conflicts = append(conflicts, toConflict("duplicate_cell", d, prev))
			}
			byCell[key] = d
		} else {
			conflicts = append(conflicts, toConflict("duplicate_cell", prev, d))
		}
	}

	byID := make(map[int]rawTagDetection)
	cellDets := make([]rawTagDetection, 0, len(byCell))
	for _, d := range byCell {
		cellDets = append(cellDets, d)
	}
	sort.Slice(cellDets, func(i, j int) bool { return cellDets[i].id < cellDets[j].id })

	for _, d := range cellDets {
		prev, ok := byID[d.id]
		if !ok || d.score > prev.score {
			if ok {
				conflicts = append(conflicts, toConflict("duplicate_id", d, prev))
			}
			byID[d.id] = d
		} else {
			conflicts = append(conflicts, toConflict("duplicate_id", prev, d))
		}
	}

	final := make([]rawTagDetection, 0, len(byID))
	for _, d := range byID {
		final = append(final, d)
	}
	sort.Slice(final, func(i, j int) bool { return final[i].id < final[j].id })

	return final, conflicts
}

func toConflict(reason string, kept, lost rawTagDetection) domain.TagConflict {
	return domain.TagConflict{Reason: reason, Kept: toDomainDetection(kept), Lost: toDomainDetection(lost)}
}

func toDomainDetection(d rawTagDetection) domain.TagDetection {
	return domain.TagDetection{
		ID: d.id, Row: d.row, Col: d.col,
		CenterX: float64(d.center.X), CenterY: float64(d.center.Y),
		Area: d.area, BorderPenalty: d.borderPenalty,
		DecodeMargin: d.decodeMargin, Score: d.score,
	}
}

func toDomainDetections(dets []rawTagDetection) []domain.TagDetection {
	out := make([]domain.TagDetection, 0, len(dets))
	for _, d := range dets {
		out = append(out, toDomainDetection(d))
	}
	return out
}

func highlightPixelRatio(gray gocv.Mat) float64 {
	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(gray, &thresh, 235, 255, gocv.ThresholdBinary)
	nonZero := gocv.CountNonZero(thresh)
	total := gray.Rows() * gray.Cols()
	if total == 0 {
		return 0
	}
	return float64(nonZero) / float64(total)
}

// DefaultAllowedTagIDs returns the {1..32} id set used when a run does
// not override it.
func DefaultAllowedTagIDs() map[int]bool {
	m := make(map[int]bool, 32)
	for i := 1; i <= 32; i++ {
		m[i] = true
	}
	return m
}
