// Package domain holds the data model shared by every pipeline stage:
// run context, stable frames, homographies, rectified boards,
// observations, the tag piece-map, decoded moves and the final game
// record. Types here are created once in stage order and never mutated
// after publication (see the pipeline's lifecycle rules).
package domain

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// Mode selects the Square Observer / Move Decoder implementation pair
// used for a run.
type Mode string

const (
	ModePhotometric Mode = "photometric"
	ModeTag         Mode = "tag"
)

// Orientation is a run-level constant; it is never inferred (see the
// board-orientation open question).
type Orientation string

const (
	OrientationWhiteBottom Orientation = "white_bottom"
	OrientationBlackBottom Orientation = "black_bottom"
)

// RunParams is the immutable parameter record fixed at ingest.
type RunParams struct {
	TargetFPS       float64
	MotionThreshold float64
	StableDuration  float64
	Mode            Mode
	Orientation     Orientation
	TagFamily       string
	UseMarkers      bool
	RectifiedSide   int
	EngineDepth     int
	PVLength        int
	EngineTimeout   time.Duration
}

// RunContext is created once at ingest and never mutated.
type RunContext struct {
	ID        string
	RootDir   string
	InputPath string
	Params    RunParams
	CreatedAt time.Time
}

// StableFrame is one motion-stable frame selected by the Frame Sampler.
// Ordered by Index, dense in Index, sparse in TimestampSeconds.
type StableFrame struct {
	Index            int
	TimestampSeconds float64
	Image            gocv.Mat
}

// MotionSample is one row of the motion trace (time, motion, is_stable).
type MotionSample struct {
	TimeSeconds float64
	Motion      float64
	IsStable    bool
}

// Homography is the 3x3 projective transform mapping a source
// quadrilateral to a Side x Side square.
type Homography struct {
	Mat  gocv.Mat
	Side int
}

// RectifiedBoard is the output of applying a Homography to a StableFrame.
type RectifiedBoard struct {
	FrameIndex int
	Image      gocv.Mat
	H          Homography
}

// SquareState is a Phase-A/B photometric classification result.
type SquareState int

const (
	Empty SquareState = iota
	Light
	Dark
)

func (s SquareState) String() string {
	switch s {
	case Empty:
		return "empty"
	case Light:
		return "light"
	case Dark:
		return "dark"
	default:
		return "unknown"
	}
}

// Observation is a sealed tagged variant: PhotometricObs or TagObs.
type Observation interface {
	isObservation()
	FrameIndex() int
}

// PhotometricObs is the output of the photometric Square Observer.
type PhotometricObs struct {
	Frame      int
	Cells      [8][8]SquareState
	Confidence [8][8]float64
}

func (PhotometricObs) isObservation()     {}
func (o PhotometricObs) FrameIndex() int { return o.Frame }

// TagDetection is one raw fiducial detection before conflict resolution.
type TagDetection struct {
	ID            int
	Row, Col      int
	CenterX       float64
	CenterY       float64
	Area          float64
	BorderPenalty float64
	DecodeMargin  float64
	Score         float64
}

// TagObs is the output of the tag-based Square Observer.
type TagObs struct {
	Frame      int
	IDs        [8][8]int
	Detections []TagDetection
	Warnings   []string
	Conflicts  []TagConflict
}

func (TagObs) isObservation()     {}
func (o TagObs) FrameIndex() int { return o.Frame }

// TagConflict records a losing detection dropped during conflict resolution.
type TagConflict struct {
	Reason string // "duplicate_cell" | "duplicate_id"
	Kept   TagDetection
	Lost   TagDetection
}

// PieceColor distinguishes White/Black, independent of square color.
type PieceColor int

const (
	White PieceColor = iota
	Black
)

// PieceMapEntry describes one tag id's fixed identity (Tag mode only).
type PieceMapEntry struct {
	Symbol        byte // PNBRQK / pnbrqk (notnil/chess-style FEN symbol)
	Color         PieceColor
	InitialSquare string // algebraic, e.g. "e1"
	Name          string
}

// PieceMap is the bijection from tag id to identity, fixed per run.
// Invariant: 32 entries, distinct ids, distinct initial squares forming a
// valid starting position.
type PieceMap map[int]PieceMapEntry

// Candidate is one ranked alternative considered by a move decoder.
type Candidate struct {
	SAN   string
	Score float64
}

// MoveRecord is one ply of the reconstructed, annotated game.
type MoveRecord struct {
	Ply            int
	SAN            string
	UCI            string
	FENAfter       string
	EvalCP         *int
	EvalMate       *int
	PV             []string
	Classification string
	CPLoss         int
	Uncertain      bool
	Candidates     []Candidate
}

// Game is the ordered sequence of MoveRecords plus PGN headers and the
// selected key plies. Invariant: the SAN sequence is legal from the
// starting position.
type Game struct {
	Headers  map[string]string
	Moves    []MoveRecord
	KeyPlies []int
}

// ValidatePieceMap checks the Tag mode invariant: 32 entries, distinct
// ids (guaranteed by the map itself), distinct initial squares.
func ValidatePieceMap(pm PieceMap) error {
	if len(pm) != 32 {
		return fmt.Errorf("piece map must have exactly 32 entries, got %d", len(pm))
	}
	seen := make(map[string]int, 32)
	for id, entry := range pm {
		if other, ok := seen[entry.InitialSquare]; ok {
			return fmt.Errorf("duplicate initial square %s used by ids %d and %d", entry.InitialSquare, other, id)
		}
		seen[entry.InitialSquare] = id
	}
	return nil
}

// Calibration holds the Photometric mode's per-run constants, computed
// exactly once on the first stable frame and immutable thereafter.
type Calibration struct {
	TemplateLightSquareLab [3]float64
	TemplateDarkSquareLab  [3]float64
	T1                     float64 // color-diff threshold
	T2                     float64 // edge-score threshold
	TLD                    float64 // L-channel light/dark threshold
}
