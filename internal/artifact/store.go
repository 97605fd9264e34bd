// Package artifact implements component F: the conventional on-disk
// run layout (spec.md §4.F) and the bbolt-backed run registry the
// watch subcommand uses to avoid reprocessing inputs across restarts.
package artifact

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/otbreview/otbreview/internal/domain"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// layoutDirs are created eagerly so every stage can write without
// checking for its own subdirectory first.
var layoutDirs = []string{
	"debug/stable_frames",
	"debug/warped_boards",
	"debug/tag_overlays",
}

// Store is a thin, typed wrapper over one run's root directory.
type Store struct {
	root string
}

// NewStore creates (if absent) and returns a Store rooted at root.
func NewStore(root string) (*Store, error) {
	s := &Store{root: root}
	if err := s.EnsureLayout(); err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureLayout creates the conventional run-root subdirectories.
func (s *Store) EnsureLayout() error {
	for _, d := range layoutDirs {
		if err := os.MkdirAll(filepath.Join(s.root, d), 0o755); err != nil {
			return errors.Wrapf(err, "creating run directory %s", d)
		}
	}
	return nil
}

// Path resolves a path relative to the run root.
func (s *Store) Path(rel string) string {
	return filepath.Join(s.root, rel)
}

// WriteJSON atomically writes v as indented JSON to rel (write to a
// temp file in the same directory, then rename, so a crash never
// leaves a half-written artifact).
func (s *Store) WriteJSON(rel string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "marshaling %s", rel)
	}
	return s.WriteBytes(rel, data)
}

// WriteBytes atomically writes data to rel.
func (s *Store) WriteBytes(rel string, data []byte) error {
	dst := s.Path(rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "creating parent directory for %s", rel)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "creating temp file for %s", rel)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, "writing %s", rel)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "closing temp file for %s", rel)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "renaming into place: %s", rel)
	}
	return nil
}

// WriteImage saves mat as a PNG at rel.
func (s *Store) WriteImage(rel string, mat gocv.Mat) error {
	dst := s.Path(rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "creating parent directory for %s", rel)
	}
	if ok := gocv.IMWrite(dst, mat); !ok {
		return errors.Errorf("failed to write image %s", rel)
	}
	return nil
}

// AppendCSVRow appends one row to a CSV file at rel, writing a header
// row first if the file does not yet exist.
func (s *Store) AppendCSVRow(rel string, header, row []string) error {
	dst := s.Path(rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "creating parent directory for %s", rel)
	}

	_, statErr := os.Stat(dst)
	needsHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(dst, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "opening %s", rel)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write(header); err != nil {
			return errors.Wrapf(err, "writing header to %s", rel)
		}
	}
	if err := w.Write(row); err != nil {
		return errors.Wrapf(err, "writing row to %s", rel)
	}
	w.Flush()
	return w.Error()
}

// WriteRunMeta persists run_meta.json, the first artifact every run
// writes.
func (s *Store) WriteRunMeta(ctx domain.RunContext) error {
	meta := map[string]any{
		"id":         ctx.ID,
		"input_path": ctx.InputPath,
		"created_at": ctx.CreatedAt,
		"params": map[string]any{
			"target_fps":       ctx.Params.TargetFPS,
			"motion_threshold": ctx.Params.MotionThreshold,
			"stable_duration":  ctx.Params.StableDuration,
			"mode":             ctx.Params.Mode,
			"orientation":      ctx.Params.Orientation,
			"use_markers":      ctx.Params.UseMarkers,
			"rectified_side":   ctx.Params.RectifiedSide,
			"engine_depth":     ctx.Params.EngineDepth,
			"pv_length":        ctx.Params.PVLength,
		},
	}
	return s.WriteJSON("run_meta.json", meta)
}

// ReadOverride loads board_ids_override.json if present, returning
// (nil, false, nil) when the file does not exist.
func (s *Store) ReadOverride() (*Override, bool, error) {
	data, err := os.ReadFile(s.Path("board_ids_override.json"))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "reading board_ids_override.json")
	}

	var o Override
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, false, errors.Wrap(err, "parsing board_ids_override.json")
	}
	return &o, true, nil
}

// Override is the user-supplied correction read from
// board_ids_override.json. The pipeline uses only PieceMap, and only
// when FromFrameIndex is 0, as the initial piece map; IDs is parsed but
// not applied to any frame, and an override for a later frame is ignored.
type Override struct {
	FromFrameIndex int         `json:"from_frame_index"`
	IDs            [8][8]int   `json:"ids"`
	PieceMap       domain.PieceMap `json:"piece_map,omitempty"`
}
