package vision

import (
	"image"

	"gocv.io/x/gocv"
)

// arucoDictionary mirrors the subset of cv2.aruco predefined dictionaries
// the pipeline needs: 4x4_50 for the four board-corner markers, 5x5_100
// for the up-to-32 piece tags.
type arucoDictionary int

const (
	arucoDict4x4_50  arucoDictionary = gocv.ArucoDict4x4_50
	arucoDict5x5_100 arucoDictionary = gocv.ArucoDict5x5_100
)

// detectArucoDict runs the ArUco detector for the given dictionary over a
// single preprocessed candidate image, returning a map of decoded id to
// marker center plus an aggregate detection score (sum of per-marker
// quad areas, used to break preprocessing-candidate ties).
func detectArucoDict(img gocv.Mat, dict arucoDictionary) (map[int]gocv.Point2f, float64) {
	dictionary := gocv.GetPredefinedDictionary(gocv.ArucoDictionaryCode(dict))
	params := gocv.NewArucoDetectorParameters()
	detector := gocv.NewArucoDetectorWithParams(dictionary, params)
	defer detector.Close()

	corners, ids, _ := detector.DetectMarkers(img)

	result := make(map[int]gocv.Point2f, len(ids))
	var totalScore float64

	for i, id := range ids {
		if i >= len(corners) || len(corners[i]) == 0 {
			continue
		}
		quad := corners[i]
		center := centroid(quad)
		result[id] = center
		totalScore += quadArea(quad)
	}

	return result, totalScore
}

func centroid(pts []gocv.Point2f) gocv.Point2f {
	var sx, sy float32
	for _, p := range pts {
		sx += p.X
		sy += p.Y
	}
	n := float32(len(pts))
	if n == 0 {
		return gocv.Point2f{}
	}
	return gocv.Point2f{X: sx / n, Y: sy / n}
}

// quadArea computes the shoelace-formula area of a (typically
// 4-vertex) polygon.
func quadArea(pts []gocv.Point2f) float64 {
	n := len(pts)
	if n < 3 {
		return 0
	}
	var area float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		area += float64(pts[i].X)*float64(pts[j].Y) - float64(pts[j].X)*float64(pts[i].Y)
	}
	if area < 0 {
		area = -area
	}
	return area / 2
}

// --- preprocessing candidates (spec.md §4.B step 1 / §4.C.2 step 1) ---

func preprocessClaheDenoise(gray gocv.Mat) gocv.Mat {
	clahe := gocv.NewCLAHEWithParams(2.0, image.Pt(8, 8))
	defer clahe.Close()

	enhanced := gocv.NewMat()
	clahe.Apply(gray, &enhanced)

	denoised := gocv.NewMat()
	gocv.FastNlMeansDenoising(enhanced, &denoised)
	enhanced.Close()

	return denoised
}

func preprocessUpscale(factor float64) func(gocv.Mat) gocv.Mat {
	return func(gray gocv.Mat) gocv.Mat {
		up := gocv.NewMat()
		newW := int(float64(gray.Cols()) * factor)
		newH := int(float64(gray.Rows()) * factor)
		gocv.Resize(gray, &up, image.Pt(newW, newH), 0, 0, gocv.InterpolationLinear)
		return up
	}
}

func preprocessAdaptiveThreshold(gray gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	gocv.AdaptiveThreshold(gray, &out, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, 11, 2)
	return out
}

func preprocessOtsuEqualized(gray gocv.Mat) gocv.Mat {
	eq := gocv.NewMat()
	gocv.EqualizeHist(gray, &eq)

	out := gocv.NewMat()
	gocv.Threshold(eq, &out, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)
	eq.Close()
	return out
}
