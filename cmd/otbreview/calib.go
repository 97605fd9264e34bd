package main

import (
	"flag"
	"fmt"

	"github.com/otbreview/otbreview/internal/artifact"
	"github.com/otbreview/otbreview/internal/vision"
	"gocv.io/x/gocv"
)

// runCalib implements the "calib" subcommand: locate the board in a
// single reference frame (the empty board, or the starting position)
// and write the resulting photometric calibration to calibration.json.
// analyze and watch do not read that file: every run recalibrates
// Phase A/B from its own first stable frame.
func runCalib(args []string) error {
	fs := flag.NewFlagSet("calib", flag.ExitOnError)
	frame := fs.String("frame", "", "path to a reference still image of the board (required)")
	out := fs.String("out", "", "output directory to write calibration.json into (required)")
	side := fs.Int("side", 512, "rectified board side length in pixels")
	sigma := fs.Float64("sigma", 2.5, "Phase A outlier-rejection sigma")
	markers := fs.Bool("markers", true, "require ArUco corner markers instead of falling back to contour detection")
	startingPosition := fs.Bool("starting-position", false, "the reference frame shows the starting position rather than an empty board, refining thresholds with Phase B")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *frame == "" || *out == "" {
		fs.Usage()
		return fmt.Errorf("-frame and -out are required")
	}

	img := gocv.IMRead(*frame, gocv.IMReadColor)
	if img.Empty() {
		return fmt.Errorf("could not read reference frame %s", *frame)
	}
	defer img.Close()

	mode := vision.MarkersOptional
	if *markers {
		mode = vision.MarkersRequired
	}

	located, err := vision.LocateBoard(img, 0, mode, *side)
	if err != nil {
		return fmt.Errorf("locating board in reference frame: %w", err)
	}
	defer located.Board.Image.Close()
	if !located.Preview.Empty() {
		defer located.Preview.Close()
	}

	cal, err := vision.CalibratePhaseA(located.Board.Image, *side, *sigma)
	if err != nil {
		return fmt.Errorf("calibration phase A: %w", err)
	}

	if *startingPosition {
		cal, err = vision.CalibratePhaseB(located.Board.Image, *side, cal)
		if err != nil {
			return fmt.Errorf("calibration phase B: %w", err)
		}
	}

	store, err := artifact.NewStore(*out)
	if err != nil {
		return fmt.Errorf("preparing output directory: %w", err)
	}
	if err := store.WriteJSON("calibration.json", cal); err != nil {
		return fmt.Errorf("writing calibration.json: %w", err)
	}
	if !located.Preview.Empty() {
		if err := store.WriteImage("debug/warped_boards/calibration_reference.png", located.Preview); err != nil {
			return fmt.Errorf("writing calibration preview: %w", err)
		}
	}

	fmt.Printf("calibration written to %s/calibration.json\n", *out)
	fmt.Printf("  used markers:       %v\n", located.UsedMarkers)
	if located.MarkerWarning != nil {
		fmt.Printf("  marker warning:     %v\n", located.MarkerWarning)
	}
	fmt.Printf("  light square (Lab): %.2f %.2f %.2f\n", cal.TemplateLightSquareLab[0], cal.TemplateLightSquareLab[1], cal.TemplateLightSquareLab[2])
	fmt.Printf("  dark square (Lab):  %.2f %.2f %.2f\n", cal.TemplateDarkSquareLab[0], cal.TemplateDarkSquareLab[1], cal.TemplateDarkSquareLab[2])

	return nil
}
