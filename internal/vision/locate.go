package vision

import (
	"image"
	"image/color"
	"sort"

	"github.com/otbreview/otbreview/internal/domain"
	"gocv.io/x/gocv"
)

// MarkerMode selects whether the contour fallback is allowed.
type MarkerMode int

const (
	MarkersOptional MarkerMode = iota
	MarkersRequired
)

// LocateResult is component B's output for one frame.
type LocateResult struct {
	Board          domain.RectifiedBoard
	UsedMarkers    bool
	MarkerWarning  error // non-nil MarkerDecodeFailureError if contour fallback was used
	Preview        gocv.Mat
	GridOverlay    gocv.Mat
}

// cornerMarkerIDs are the four board-corner fiducial ids, ordered
// top-left, top-right, bottom-right, bottom-left.
var cornerMarkerIDs = [4]int{0, 1, 2, 3}

// LocateBoard implements component B: detect the board quadrilateral
// (marker path, falling back to contour detection) and rectify it to a
// Side x Side square.
func LocateBoard(frame gocv.Mat, frameIdx int, mode MarkerMode, side int) (LocateResult, error) {
	markers, ok := detectCornerMarkers(frame)
	if ok {
		h, err := computeHomography(markers[:], side)
		if err != nil {
			return LocateResult{}, &domain.BoardNotFoundError{FrameIndex: frameIdx, Reason: err.Error()}
		}
		warped := gocv.NewMat()
		gocv.WarpPerspective(frame, &warped, h.Mat, image.Pt(side, side))

		return LocateResult{
			Board: domain.RectifiedBoard{
				FrameIndex: frameIdx,
				Image:      warped,
				H:          h,
			},
			UsedMarkers: true,
			Preview:     drawMarkerPreview(frame, markers[:]),
			GridOverlay: drawGridOverlay(warped, side),
		}, nil
	}

	if mode == MarkersRequired {
		return LocateResult{}, &domain.BoardNotFoundError{FrameIndex: frameIdx, Reason: "marker path failed, contour fallback disabled"}
	}

	quad, err := detectContourQuad(frame)
	if err != nil {
		return LocateResult{}, &domain.BoardNotFoundError{FrameIndex: frameIdx, Reason: err.Error()}
	}

	h, err := computeHomographyAutoSize(quad, side)
	if err != nil {
		return LocateResult{}, &domain.BoardNotFoundError{FrameIndex: frameIdx, Reason: err.Error()}
	}
	warped := gocv.NewMat()
	gocv.WarpPerspective(frame, &warped, h.Mat, image.Pt(side, side))

	return LocateResult{
		Board: domain.RectifiedBoard{
			FrameIndex: frameIdx,
			Image:      warped,
			H:          h,
		},
		UsedMarkers:   false,
		MarkerWarning: &domain.MarkerDecodeFailureError{FrameIndex: frameIdx, UniqueIDs: 0},
		GridOverlay:   drawGridOverlay(warped, side),
	}, nil
}

type cornerPoint struct {
	id     int
	center gocv.Point2f
}

// detectCornerMarkers runs the ArUco detector (4x4_50 dictionary) over the
// preprocessing chain in spec.md §4.B step 1 until all four corner ids
// are decoded (the candidate with the most ids wins, ties broken by
// total marker area); returns the winning candidate's marker centers in
// TL,TR,BR,BL order.
func detectCornerMarkers(frame gocv.Mat) ([4]cornerPoint, bool) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	candidates := []func(gocv.Mat) gocv.Mat{
		preprocessClaheDenoise,
		preprocessUpscale(1.4),
		preprocessAdaptiveThreshold,
		preprocessOtsuEqualized,
	}

	var best map[int]gocv.Point2f
	var bestScore float64
	found := false

	for _, prep := range candidates {
		candidate := prep(gray)
		idToCenter, score := detectArucoDict(candidate, arucoDict4x4_50)
		candidate.Close()

		if len(idToCenter) > len(best) || (len(idToCenter) == len(best) && score > bestScore) {
			best = idToCenter
			bestScore = score
			if allCornersPresent(best) {
				found = true
				break
			}
		}
	}

	if !found || !allCornersPresent(best) {
		return [4]cornerPoint{}, false
	}

	return [4]cornerPoint{
		{id: 0, center: best[0]},
		{id: 1, center: best[1]},
		{id: 2, center: best[2]},
		{id: 3, center: best[3]},
	}, true
}

func allCornersPresent(m map[int]gocv.Point2f) bool {
	if m == nil {
		return false
	}
	for _, id := range cornerMarkerIDs {
		if _, ok := m[id]; !ok {
			return false
		}
	}
	return true
}

func computeHomography(corners [4]cornerPoint, side int) (domain.Homography, error) {
	src := gocv.NewPoint2fVectorFromPoints([]gocv.Point2f{
		{X: corners[0].center.X, Y: corners[0].center.Y},
		{X: corners[1].center.X, Y: corners[1].center.Y},
		{X: corners[2].center.X, Y: corners[2].center.Y},
		{X: corners[3].center.X, Y: corners[3].center.Y},
	})
	defer src.Close()

	s := float32(side)
	dst := gocv.NewPoint2fVectorFromPoints([]gocv.Point2f{
		{X: 0, Y: 0}, {X: s, Y: 0}, {X: s, Y: s}, {X: 0, Y: s},
	})
	defer dst.Close()

	m := gocv.GetPerspectiveTransform2f(src, dst)
	return domain.Homography{Mat: m, Side: side}, nil
}

// detectContourQuad implements the contour fallback: Canny edges ->
// external contours -> largest 4-vertex polygon approximation -> ordered
// by (x+y)/(x-y) extrema.
func detectContourQuad(frame gocv.Mat) ([4]gocv.Point2f, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, 50, 150)

	contours := gocv.FindContours(edges, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var best gocv.PointVector
	maxArea := 0.0
	haveBest := false

	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area < maxArea {
			continue
		}
		peri := gocv.ArcLength(contour, true)
		approx := gocv.ApproxPolyDP(contour, 0.02*peri, true)
		if approx.Size() == 4 {
			best = approx
			maxArea = area
			haveBest = true
		}
	}

	var pts [4]gocv.Point2f
	if !haveBest {
		w, h := frame.Cols(), frame.Rows()
		pts = [4]gocv.Point2f{{X: 0, Y: 0}, {X: float32(w), Y: 0}, {X: float32(w), Y: float32(h)}, {X: 0, Y: float32(h)}}
	} else {
		raw := best.ToPoints()
		for i := 0; i < 4 && i < len(raw); i++ {
			pts[i] = gocv.Point2f{X: float32(raw[i].X), Y: float32(raw[i].Y)}
		}
	}

	return orderPoints(pts), nil
}

// orderPoints sorts four arbitrary corner points into TL, TR, BR, BL
// order using the (x+y) and (x-y) extrema, matching `_order_points`.
func orderPoints(pts [4]gocv.Point2f) [4]gocv.Point2f {
	type sc struct {
		p        gocv.Point2f
		sum, dif float64
	}
	scored := make([]sc, len(pts))
	for i, p := range pts {
		scored[i] = sc{p: p, sum: float64(p.X + p.Y), dif: float64(p.X - p.Y)}
	}

	var ordered [4]gocv.Point2f
	sort.Slice(scored, func(i, j int) bool { return scored[i].sum < scored[j].sum })
	ordered[0] = scored[0].p // min sum -> top-left
	ordered[2] = scored[len(scored)-1].p // max sum -> bottom-right

	sort.Slice(scored, func(i, j int) bool { return scored[i].dif < scored[j].dif })
	ordered[1] = scored[len(scored)-1].p // max diff -> top-right
	ordered[3] = scored[0].p // min diff -> bottom-left

	return ordered
}

// computeHomographyAutoSize warps the contour-fallback quad to exactly
// side x side, same as the marker path's computeHomography, so every
// downstream consumer (observers, calibration) can rely on Side
// matching the frame's real dimensions regardless of the quad's
// on-screen aspect ratio.
func computeHomographyAutoSize(quad [4]gocv.Point2f, side int) (domain.Homography, error) {
	tl, tr, br, bl := quad[0], quad[1], quad[2], quad[3]

	src := gocv.NewPoint2fVectorFromPoints([]gocv.Point2f{tl, tr, br, bl})
	defer src.Close()

	s := float32(side)
	dst := gocv.NewPoint2fVectorFromPoints([]gocv.Point2f{
		{X: 0, Y: 0}, {X: s, Y: 0}, {X: s, Y: s}, {X: 0, Y: s},
	})
	defer dst.Close()

	m := gocv.GetPerspectiveTransform2f(src, dst)
	return domain.Homography{Mat: m, Side: side}, nil
}

func drawMarkerPreview(frame gocv.Mat, corners [4]cornerPoint) gocv.Mat {
	preview := frame.Clone()
	for _, c := range corners {
		center := image.Pt(int(c.center.X), int(c.center.Y))
		gocv.Circle(&preview, center, 10, color.RGBA{R: 255, G: 0, B: 0, A: 255}, -1)
	}
	return preview
}

func drawGridOverlay(warped gocv.Mat, side int) gocv.Mat {
	overlay := warped.Clone()
	cell := side / 8
	green := color.RGBA{G: 255, A: 255}
	for i := 0; i <= 8; i++ {
		x := i * cell
		gocv.Line(&overlay, image.Pt(x, 0), image.Pt(x, side), green, 2)
		y := i * cell
		gocv.Line(&overlay, image.Pt(0, y), image.Pt(side, y), green, 2)
	}
	return overlay
}
