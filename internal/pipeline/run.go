// Package pipeline implements the sequential stage orchestrator
// (components A through F) and the watch supervisor that feeds it from
// a directory of dropped inputs.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/otbreview/otbreview/internal/artifact"
	"github.com/otbreview/otbreview/internal/decode"
	"github.com/otbreview/otbreview/internal/domain"
	"github.com/otbreview/otbreview/internal/engine"
	ifacelog "github.com/otbreview/otbreview/internal/iface/logger"
	"github.com/otbreview/otbreview/internal/vision"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// lowConfidenceThreshold flags a photometric observation whose mean
// per-cell confidence (see domain.PhotometricObs.MeanConfidence) falls
// below this as a run warning, even though the cell classifications
// themselves are still used.
const lowConfidenceThreshold = 0.6

// Stats mirrors the teacher's PipelineStats shape, generalized to a
// single checkpointed run instead of a continuous capture loop.
type Stats struct {
	FramesSampled    int
	BoardsLocated    int
	ObservationsMade int
	PliesDecoded     int
	UncertainPlies   int
	EnginePliesAnnotated int
	Warnings         []string
	Elapsed          time.Duration
}

// Run executes components A through F in order for one run and returns
// the final annotated game plus run statistics. It writes
// debug/motion.csv, debug/stable_frames/ and debug/warped_boards/ (both
// hold the rectified board), debug/grid_overlay.png, per-frame
// debug/observations/*.json, calibration.json (photometric mode),
// board_ids.json (tag mode, first frame's id grid only), game.pgn,
// moves.json and analysis.json. It does not write tag overlays,
// tag_metrics.csv, step confidence, uncertain-move or occupancy-map
// files; run_meta.json is written by the caller.
func Run(ctx context.Context, rc domain.RunContext, store *artifact.Store, eng *engine.Client, logger *zap.Logger) (domain.Game, Stats, error) {
	start := time.Now()
	stats := Stats{}

	logger.Info("run starting", zap.String("run_id", rc.ID), zap.String("input", rc.InputPath), zap.String("mode", string(rc.Params.Mode)))

	// Component A: Frame Sampler.
	stageStart := time.Now()
	sampled, err := vision.ExtractStableFrames(rc.InputPath, vision.SampleParams{
		TargetFPS:       rc.Params.TargetFPS,
		MotionThreshold: rc.Params.MotionThreshold,
		StableDuration:  rc.Params.StableDuration,
		MinIntervalSec:  rc.Params.StableDuration,
	})
	if err != nil {
		return domain.Game{}, stats, errors.Wrap(err, "frame sampling")
	}
	stats.FramesSampled = len(sampled.Frames)
	logger.Info("frame sampling complete", zap.Int("stable_frames", len(sampled.Frames)))
	ifacelog.LogStage(ifacelog.StageMetrics{
		RunID:      rc.ID,
		Stage:      "A",
		ItemsOut:   len(sampled.Frames),
		DurationMs: float64(time.Since(stageStart).Milliseconds()),
	})

	for _, m := range sampled.Motion {
		_ = store.AppendCSVRow("debug/motion.csv",
			[]string{"time", "motion", "is_stable"},
			[]string{fmt.Sprintf("%.3f", m.TimeSeconds), fmt.Sprintf("%.4f", m.Motion), fmt.Sprintf("%v", m.IsStable)})
	}

	if len(sampled.Frames) < 2 {
		return domain.Game{}, stats, &domain.TooFewStableFramesError{Found: len(sampled.Frames)}
	}

	// Component B: Board Locator, run over every stable frame.
	stageStart = time.Now()
	markerMode := vision.MarkersOptional
	if rc.Params.UseMarkers {
		markerMode = vision.MarkersRequired
	}

	boards := make([]domain.RectifiedBoard, 0, len(sampled.Frames))
	for i, f := range sampled.Frames {
		loc, err := vision.LocateBoard(f.Image, f.Index, markerMode, rc.Params.RectifiedSide)
		f.Image.Close()
		if err != nil {
			if i == 0 {
				return domain.Game{}, stats, errors.Wrap(err, "locating board in first frame")
			}
			stats.Warnings = append(stats.Warnings, err.Error())
			logger.Warn("board not found, skipping frame", zap.Int("frame", f.Index), zap.Error(err))
			continue
		}
		if loc.MarkerWarning != nil {
			stats.Warnings = append(stats.Warnings, loc.MarkerWarning.Error())
			logger.Warn("marker decode fell back to contour detection", zap.Int("frame", f.Index))
		}

		_ = store.WriteImage(fmt.Sprintf("debug/stable_frames/frame_%04d.png", f.Index), loc.Board.Image)
		_ = store.WriteImage(fmt.Sprintf("debug/warped_boards/board_%04d.png", f.Index), loc.Board.Image)
		if i == 0 && !loc.GridOverlay.Empty() {
			_ = store.WriteImage("debug/grid_overlay.png", loc.GridOverlay)
		}
		if !loc.Preview.Empty() {
			loc.Preview.Close()
		}
		if !loc.GridOverlay.Empty() {
			loc.GridOverlay.Close()
		}

		boards = append(boards, loc.Board)
	}
	stats.BoardsLocated = len(boards)
	ifacelog.LogStage(ifacelog.StageMetrics{
		RunID:       rc.ID,
		Stage:       "B",
		ItemsIn:     len(sampled.Frames),
		ItemsOut:    len(boards),
		FailedItems: len(sampled.Frames) - len(boards),
		DurationMs:  float64(time.Since(stageStart).Milliseconds()),
	})
	if len(boards) < 2 {
		return domain.Game{}, stats, &domain.BoardNotFoundError{FrameIndex: 0, Reason: "fewer than two boards located across the whole run"}
	}
	defer func() {
		for _, b := range boards {
			b.Image.Close()
		}
	}()

	var game domain.Game
	switch rc.Params.Mode {
	case domain.ModeTag:
		game, err = runTagMode(ctx, rc, store, boards, eng, logger, &stats)
	default:
		game, err = runPhotometricMode(ctx, rc, store, boards, eng, logger, &stats)
	}
	if err != nil {
		return domain.Game{}, stats, err
	}

	stats.Elapsed = time.Since(start)
	logger.Info("run complete",
		zap.Int("plies", len(game.Moves)),
		zap.Int("uncertain_plies", stats.UncertainPlies),
		zap.Duration("elapsed", stats.Elapsed))
	ifacelog.LogPerformance("pipeline_run", float64(stats.Elapsed.Milliseconds()), true)

	return game, stats, nil
}

func runPhotometricMode(ctx context.Context, rc domain.RunContext, store *artifact.Store, boards []domain.RectifiedBoard, eng *engine.Client, logger *zap.Logger, stats *Stats) (domain.Game, error) {
	cal, err := vision.CalibratePhaseA(boards[0].Image, rc.Params.RectifiedSide, 4)
	if err != nil {
		return domain.Game{}, errors.Wrap(err, "calibration phase A")
	}
	cal, err = vision.CalibratePhaseB(boards[0].Image, rc.Params.RectifiedSide, cal)
	if err != nil {
		return domain.Game{}, errors.Wrap(err, "calibration phase B")
	}
	_ = store.WriteJSON("calibration.json", cal)

	dec := decode.NewLegalityDecoder(rc.Params.Orientation)

	var moves []domain.MoveRecord
	ply := 1
	for _, b := range boards[1:] {
		obs := vision.ObservePhotometric(b.Image, rc.Params.RectifiedSide, b.FrameIndex, cal)
		stats.ObservationsMade++
		_ = store.WriteJSON(fmt.Sprintf("debug/observations/%04d.json", b.FrameIndex), obs)

		if conf := obs.MeanConfidence(); conf < lowConfidenceThreshold {
			stats.Warnings = append(stats.Warnings, fmt.Sprintf("low observation confidence at frame %d: %.2f", b.FrameIndex, conf))
			logger.Warn("low observation confidence", zap.Int("frame", b.FrameIndex), zap.Float64("confidence", conf))
		}

		mv, err := dec.Step(ply, obs)
		if err != nil {
			return domain.Game{}, errors.Wrapf(err, "decoding ply %d", ply)
		}
		if mv.Uncertain {
			stats.UncertainPlies++
			logger.Warn("uncertain ply", zap.Int("ply", ply))
		}
		moves = annotateAndAppend(ctx, eng, rc, moves, mv, stats, logger)
		stats.PliesDecoded++
		ply++
	}

	ifacelog.LogStage(ifacelog.StageMetrics{
		RunID:       rc.ID,
		Stage:       "D",
		ItemsIn:     stats.ObservationsMade,
		ItemsOut:    len(moves),
		FailedItems: stats.UncertainPlies,
	})

	return finalizeGame(store, rc, moves, dec.Outcome())
}

func runTagMode(ctx context.Context, rc domain.RunContext, store *artifact.Store, boards []domain.RectifiedBoard, eng *engine.Client, logger *zap.Logger, stats *Stats) (domain.Game, error) {
	allowed := vision.DefaultAllowedTagIDs()

	firstObs := vision.ObserveTag(boards[0].Image, boards[0].FrameIndex, rc.Params.RectifiedSide, allowed)
	stats.ObservationsMade++
	recordTagWarnings(stats, logger, firstObs)
	_ = store.WriteJSON("board_ids.json", firstObs.IDs)

	pieceMap, err := resolveOverride(store, firstObs)
	if err != nil {
		return domain.Game{}, err
	}

	dec, err := decode.NewIdentityDecoder(pieceMap, rc.Params.Orientation)
	if err != nil {
		return domain.Game{}, errors.Wrap(err, "building identity decoder")
	}
	if mismatches := dec.ConfirmInitial(firstObs); len(mismatches) > 0 {
		for _, m := range mismatches {
			stats.Warnings = append(stats.Warnings, m)
			logger.Warn("initial position mismatch", zap.String("detail", m))
		}
	}

	var moves []domain.MoveRecord
	ply := 1
	prev := firstObs
	for _, b := range boards[1:] {
		obs := vision.ObserveTag(b.Image, b.FrameIndex, rc.Params.RectifiedSide, allowed)
		stats.ObservationsMade++
		recordTagWarnings(stats, logger, obs)
		_ = store.WriteJSON(fmt.Sprintf("debug/observations/%04d.json", b.FrameIndex), obs)

		mv, err := dec.Step(ply, prev, obs)
		if err != nil {
			return domain.Game{}, errors.Wrapf(err, "decoding ply %d", ply)
		}
		if mv.Uncertain {
			stats.UncertainPlies++
			logger.Warn("uncertain ply", zap.Int("ply", ply))
		}
		moves = annotateAndAppend(ctx, eng, rc, moves, mv, stats, logger)
		stats.PliesDecoded++
		prev = obs
		ply++
	}

	ifacelog.LogStage(ifacelog.StageMetrics{
		RunID:       rc.ID,
		Stage:       "D",
		ItemsIn:     stats.ObservationsMade,
		ItemsOut:    len(moves),
		FailedItems: stats.UncertainPlies,
	})

	return finalizeGame(store, rc, moves, dec.Outcome())
}

func recordTagWarnings(stats *Stats, logger *zap.Logger, obs domain.TagObs) {
	for _, w := range obs.Warnings {
		stats.Warnings = append(stats.Warnings, w)
		logger.Warn("tag observation warning", zap.Int("frame", obs.Frame), zap.String("warning", w))
	}
}

// resolveOverride uses the piece_map of board_ids_override.json as the
// initial piece map if the file is present, its from_frame_index is 0
// and its piece_map is non-empty; otherwise it derives the piece map
// positionally from the standard starting array plus the observed ids.
// The override's ids grid is not used.
func resolveOverride(store *artifact.Store, firstObs domain.TagObs) (domain.PieceMap, error) {
	override, ok, err := store.ReadOverride()
	if err != nil {
		return nil, err
	}
	if ok && override.FromFrameIndex == 0 && len(override.PieceMap) > 0 {
		return override.PieceMap, nil
	}
	return defaultPieceMap(firstObs), nil
}

// defaultPieceMap binds each observed tag id, in the standard starting
// array, to its canonical identity by scanning the initial board's
// occupied cells in algebraic order.
func defaultPieceMap(obs domain.TagObs) domain.PieceMap {
	type startPiece struct {
		symbol byte
		name   string
		color  domain.PieceColor
	}
	backRank := []startPiece{
		{'R', "Rook", 0}, {'N', "Knight", 0}, {'B', "Bishop", 0}, {'Q', "Queen", 0},
		{'K', "King", 0}, {'B', "Bishop", 0}, {'N', "Knight", 0}, {'R', "Rook", 0},
	}
	pm := make(domain.PieceMap, 32)
	files := "abcdefgh"

	bind := func(row, col int, p startPiece) {
		id := obs.IDs[row][col]
		if id == 0 {
			return
		}
		sq := fmt.Sprintf("%c%d", files[col], 8-row)
		pm[id] = domain.PieceMapEntry{Symbol: p.symbol, Color: p.color, InitialSquare: sq, Name: p.name}
	}

	for col, p := range backRank {
		white := p
		white.symbol = lowerToUpper(p.symbol)
		white.color = domain.White
		bind(7, col, white)

		black := p
		black.color = domain.Black
		black.symbol = toLower(p.symbol)
		bind(0, col, black)
	}
	for col := 0; col < 8; col++ {
		bind(6, col, startPiece{symbol: 'P', name: "Pawn", color: domain.White})
		bind(1, col, startPiece{symbol: 'p', name: "Pawn", color: domain.Black})
	}
	return pm
}

func lowerToUpper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

func toLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

// annotateAndAppend runs the Engine Annotator (component E) for one
// move, tolerating engine unavailability/timeout as non-fatal per
// spec.md §7.
func annotateAndAppend(ctx context.Context, eng *engine.Client, rc domain.RunContext, moves []domain.MoveRecord, mv domain.MoveRecord, stats *Stats, logger *zap.Logger) []domain.MoveRecord {
	defer func() {
		ifacelog.LogEvent("move_decoded", ifacelog.FormatMove(mv.SAN, mv.UCI, mv.Uncertain))
	}()

	if eng == nil || mv.Uncertain || mv.FENAfter == "" {
		return append(moves, mv)
	}

	callStart := time.Now()
	result, err := eng.Analyze(ctx, mv.Ply, mv.FENAfter, rc.Params.EngineDepth, rc.Params.PVLength, rc.Params.EngineTimeout)
	callMs := float64(time.Since(callStart).Milliseconds())
	ifacelog.LogProfiler(ifacelog.ProfilerMetrics{FunctionName: "engine.Analyze", CallCount: 1, TotalTimeMs: callMs, AvgTimeMs: callMs})
	if err != nil {
		stats.Warnings = append(stats.Warnings, err.Error())
		logger.Warn("engine annotation failed", zap.Int("ply", mv.Ply), zap.Error(err))
		return append(moves, mv)
	}

	mv.EvalCP = result.CP
	mv.EvalMate = result.Mate
	mv.PV = result.PV

	// classify.py's _is_book_move() is an unconditional stub that always
	// returns false, so no move is ever classified as book here either.
	if len(moves) > 0 && moves[len(moves)-1].EvalCP != nil && mv.EvalCP != nil {
		loss := engine.CPLoss(*moves[len(moves)-1].EvalCP, *mv.EvalCP, mv.Ply)
		mv.CPLoss = loss
		mv.Classification = engine.Classify(loss, false)
	} else {
		mv.Classification = engine.Classify(0, false)
	}

	evalCP := 0
	if mv.EvalCP != nil {
		evalCP = *mv.EvalCP
	}
	ifacelog.LogPly(ifacelog.PlyMetrics{
		RunID:          rc.ID,
		Ply:            mv.Ply,
		SAN:            mv.SAN,
		EvalCP:         evalCP,
		Classification: mv.Classification,
		Uncertain:      mv.Uncertain,
	})

	stats.EnginePliesAnnotated++
	return append(moves, mv)
}

// finalizeGame assembles the decoded moves into a domain.Game and
// persists every artifact. result is the canonical board's terminal
// outcome as produced by the decoder that walked it ("*" unless the
// game actually ended: checkmate, stalemate, insufficient material or
// the 75-move rule or fivefold repetition, per spec.md §6).
func finalizeGame(store *artifact.Store, rc domain.RunContext, moves []domain.MoveRecord, result string) (domain.Game, error) {
	if result == "" {
		result = "*"
	}
	headers := map[string]string{
		"Event":  "Over-the-board review",
		"Site":   rc.InputPath,
		"Date":   rc.CreatedAt.Format("2006.01.02"),
		"Round":  "1",
		"White":  "?",
		"Black":  "?",
		"Result": result,
	}
	game := decode.BuildGame(headers, moves)
	game.KeyPlies = engine.SelectKeyPlies(moves)

	// Every artifact below is independently useful to a reviewer even if
	// a sibling write fails, so errors are combined rather than
	// short-circuited on the first one.
	var writeErr error

	var pgnBuf bytes.Buffer
	if err := decode.WritePGN(&pgnBuf, game); err != nil {
		writeErr = multierr.Append(writeErr, errors.Wrap(err, "rendering game.pgn"))
	} else if err := store.WriteBytes("game.pgn", pgnBuf.Bytes()); err != nil {
		writeErr = multierr.Append(writeErr, errors.Wrap(err, "writing game.pgn"))
	}

	var movesBuf bytes.Buffer
	if err := decode.WriteMovesJSON(&movesBuf, moves); err != nil {
		writeErr = multierr.Append(writeErr, errors.Wrap(err, "rendering moves.json"))
	} else if err := store.WriteBytes("moves.json", movesBuf.Bytes()); err != nil {
		writeErr = multierr.Append(writeErr, errors.Wrap(err, "writing moves.json"))
	}

	if err := store.WriteJSON("analysis.json", map[string]any{
		"key_plies": game.KeyPlies,
		"headers":   game.Headers,
	}); err != nil {
		writeErr = multierr.Append(writeErr, errors.Wrap(err, "writing analysis.json"))
	}

	return game, writeErr
}
