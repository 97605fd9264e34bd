// Package vision implements components A (Frame Sampler), B (Board
// Locator) and C (Square Observer, both the photometric and tag
// variants) of the otbreview pipeline.
package vision

import (
	"math"

	"github.com/otbreview/otbreview/internal/domain"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// SampleParams mirrors domain.RunParams' sampling fields.
type SampleParams struct {
	TargetFPS       float64
	MotionThreshold float64
	StableDuration  float64
	MinIntervalSec  float64
}

// SampleResult is component A's output.
type SampleResult struct {
	Frames []domain.StableFrame
	Motion []domain.MotionSample
}

// ExtractStableFrames implements component A: Frame Sampler.
//
// Downsample to target_fps, track a run-length of consecutive frames
// whose grayscale motion energy stays below motion_threshold, and emit
// the middle frame of every run at least stable_duration seconds long,
// enforcing a minimum inter-capture gap.
func ExtractStableFrames(path string, p SampleParams) (SampleResult, error) {
	cap := gocv.OpenVideoCapture(path)
	defer cap.Close()
	if !cap.IsOpened() {
		return SampleResult{}, &domain.InputUnreadableError{Path: path, Reason: "cannot open video"}
	}

	originalFPS := cap.Get(gocv.VideoCaptureFPS)
	if originalFPS <= 0 {
		originalFPS = 30.0
	}

	skipFrames := int(originalFPS / p.TargetFPS)
	if skipFrames < 1 {
		skipFrames = 1
	}

	stableFrameCount := int(p.TargetFPS * p.StableDuration)
	if stableFrameCount < 1 {
		stableFrameCount = 1
	}
	minIntervalFrames := int(originalFPS * p.MinIntervalSec)

	var (
		frames           []domain.StableFrame
		motion           []domain.MotionSample
		prevGray         gocv.Mat
		havePrev         bool
		stableCounter    int
		stableStartIdx   = -1
		frameIdx         int
		lastSavedIdx     = -minIntervalFrames
		savedCount       int
	)
	defer func() {
		if havePrev {
			prevGray.Close()
		}
	}()

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		if ok := cap.Read(&frame); !ok || frame.Empty() {
			break
		}
		if frameIdx%skipFrames != 0 {
			frameIdx++
			continue
		}

		gray := gocv.NewMat()
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
		timeSec := float64(frameIdx) / originalFPS

		if havePrev {
			diff := gocv.NewMat()
			gocv.AbsDiff(gray, prevGray, &diff)
			meanVal := diff.Mean()
			diff.Close()
			motionEnergy := meanVal.Val1 / 255.0

			isStable := motionEnergy < p.MotionThreshold
			if isStable {
				if stableStartIdx < 0 {
					stableStartIdx = frameIdx
				}
				stableCounter++
			} else {
				stableStartIdx = -1
				stableCounter = 0
			}

			motion = append(motion, domain.MotionSample{TimeSeconds: timeSec, Motion: motionEnergy, IsStable: isStable})

			if stableCounter >= stableFrameCount && stableStartIdx >= 0 {
				if frameIdx-lastSavedIdx >= minIntervalFrames {
					midIdx := stableStartIdx + (stableCounter/2)*skipFrames
					midFrame, err := readFrameAt(path, midIdx)
					if err == nil {
						frames = append(frames, domain.StableFrame{
							Index:            savedCount,
							TimestampSeconds: float64(midIdx) / originalFPS,
							Image:            midFrame,
						})
						savedCount++
						lastSavedIdx = frameIdx
					}
				}
				stableStartIdx = -1
				stableCounter = 0
			}
		} else {
			motion = append(motion, domain.MotionSample{TimeSeconds: timeSec, Motion: 0, IsStable: false})
		}

		if havePrev {
			prevGray.Close()
		}
		prevGray = gray
		havePrev = true
		frameIdx++
	}

	if len(frames) == 0 {
		first, err := readFrameAt(path, 0)
		if err != nil {
			return SampleResult{}, &domain.InputUnreadableError{Path: path, Reason: "cannot read first frame"}
		}
		frames = append(frames, domain.StableFrame{Index: 0, TimestampSeconds: 0, Image: first})
	}

	return SampleResult{Frames: frames, Motion: motion}, nil
}

// readFrameAt seeks to an absolute frame index and decodes it. Opening a
// fresh capture keeps this independent of the caller's read cursor.
func readFrameAt(path string, idx int) (gocv.Mat, error) {
	cap := gocv.OpenVideoCapture(path)
	defer cap.Close()
	if !cap.IsOpened() {
		return gocv.NewMat(), errors.New("cannot reopen video for seek")
	}
	cap.Set(gocv.VideoCapturePosFrames, float64(idx))

	frame := gocv.NewMat()
	if ok := cap.Read(&frame); !ok || frame.Empty() {
		frame.Close()
		return gocv.NewMat(), errors.Errorf("cannot read frame %d", idx)
	}
	return frame.Clone(), nil
}

// MotionEnergy computes the normalized grayscale absdiff mean between two
// equally-sized frames; exported for unit testing against synthetic
// buffers without a real video file.
func MotionEnergy(prevGray, currGray gocv.Mat) float64 {
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(prevGray, currGray, &diff)
	return diff.Mean().Val1 / 255.0
}

// MiddleOfRun returns the index of the median frame in a stable run that
// started at startIdx and lasted runLength sampled frames spaced
// skipFrames apart, matching the Python original's `stable_start_idx +
// (stable_counter // 2) * skip_frames`.
func MiddleOfRun(startIdx, runLength, skipFrames int) int {
	return startIdx + (runLength/2)*skipFrames
}

// clamp01 keeps a motion energy value in [0,1] in the presence of
// pathological input (e.g. all-white noise frames).
func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
