package vision

import (
	"image"

	"github.com/otbreview/otbreview/internal/domain"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

// labPatch is a square-color-grouped calibration sample: its mean Lab
// color diff from the group template, and its Canny edge-pixel ratio.
type labPatch struct {
	lab       [3]float64
	colorDiff float64
	edgeScore float64
}

// CalibratePhaseA derives T1 (color-diff threshold) and T2 (edge-score
// threshold), each as mean + sigma*stddev, from the ranks-3-to-6
// calibration patches of the first stable, rectified board, per spec.md
// §4.C.1. The pipeline passes sigma 4; the calib subcommand passes its
// -sigma flag.
func CalibratePhaseA(board gocv.Mat, side int, sigma float64) (domain.Calibration, error) {
	cell := side / 8
	var lightSamples, darkSamples [][3]float64

	// Ranks 3-6 (0-indexed rows 2..5) grouped by checker square color.
	for row := 2; row <= 5; row++ {
		for col := 0; col < 8; col++ {
			patch := centralPatch(board, row, col, cell)
			lab := meanLab(patch)
			patch.Close()

			if (row+col)%2 == 0 {
				lightSamples = append(lightSamples, lab)
			} else {
				darkSamples = append(darkSamples, lab)
			}
		}
	}

	templateLight := meanOf(lightSamples)
	templateDark := meanOf(darkSamples)

	var colorDiffs, edgeScores []float64
	for row := 2; row <= 5; row++ {
		for col := 0; col < 8; col++ {
			patch := centralPatch(board, row, col, cell)
			lab := meanLab(patch)

			template := templateLight
			if (row+col)%2 != 0 {
				template = templateDark
			}
			colorDiffs = append(colorDiffs, labDiff(lab, template))
			edgeScores = append(edgeScores, edgePixelRatio(patch))
			patch.Close()
		}
	}

	if len(colorDiffs) < 8 {
		return domain.Calibration{}, &domain.CalibrationFailureError{Phase: "A", Samples: len(colorDiffs)}
	}

	muColor, sigmaColor := stat.MeanStdDev(colorDiffs, nil)
	muEdge, sigmaEdge := stat.MeanStdDev(edgeScores, nil)

	return domain.Calibration{
		TemplateLightSquareLab: templateLight,
		TemplateDarkSquareLab:  templateDark,
		T1:                     muColor + sigma*sigmaColor,
		T2:                     muEdge + sigma*sigmaEdge,
	}, nil
}

// CalibratePhaseB derives T_ld (the light/dark piece L-channel split)
// from the top rows 0-1 (ranks 8-7 with white at the bottom: the dark
// pieces) and the bottom rows 6-7 (ranks 2-1: the light pieces), as the
// midpoint of the two mean L values.
func CalibratePhaseB(board gocv.Mat, side int, cal domain.Calibration) (domain.Calibration, error) {
	cell := side / 8

	var darkL, lightL []float64
	for col := 0; col < 8; col++ {
		for _, row := range []int{0, 1} {
			patch := centralPatch(board, row, col, cell)
			darkL = append(darkL, meanLab(patch)[0])
			patch.Close()
		}
		for _, row := range []int{6, 7} {
			patch := centralPatch(board, row, col, cell)
			lightL = append(lightL, meanLab(patch)[0])
			patch.Close()
		}
	}

	if len(darkL) < 4 || len(lightL) < 4 {
		return cal, &domain.CalibrationFailureError{Phase: "B", Samples: len(darkL) + len(lightL)}
	}

	muDark := stat.Mean(darkL, nil)
	muLight := stat.Mean(lightL, nil)

	cal.TLD = (muLight + muDark) / 2
	return cal, nil
}

// centralPatch extracts the central 40% x 40% region of cell (row, col).
func centralPatch(board gocv.Mat, row, col, cell int) gocv.Mat {
	margin := int(float64(cell) * 0.3)
	size := cell - 2*margin
	x := col*cell + margin
	y := row*cell + margin
	rect := image.Rect(x, y, x+size, y+size)
	region := board.Region(rect)
	return region.Clone()
}

func meanLab(patch gocv.Mat) [3]float64 {
	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(patch, &lab, gocv.ColorBGRToLab)
	m := lab.Mean()
	return [3]float64{m.Val1, m.Val2, m.Val3}
}

func labDiff(a, b [3]float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / float64(len(a))
}

func meanOf(samples [][3]float64) [3]float64 {
	var sum [3]float64
	for _, s := range samples {
		for i := range s {
			sum[i] += s[i]
		}
	}
	n := float64(len(samples))
	if n == 0 {
		return sum
	}
	for i := range sum {
		sum[i] /= n
	}
	return sum
}

func edgePixelRatio(patch gocv.Mat) float64 {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(patch, &gray, gocv.ColorBGRToGray)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, 50, 150)

	nonZero := gocv.CountNonZero(edges)
	total := edges.Rows() * edges.Cols()
	if total == 0 {
		return 0
	}
	return float64(nonZero) / float64(total)
}
