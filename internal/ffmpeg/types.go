package ffmpeg

import "time"

// Options locates the binaries and tunes execution
type Options struct {
	BinaryPath string
	ProbePath  string
	Threads    int
}

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath   string
	Duration   time.Duration
	Width      int
	Height     int
	FPS        float64
	Frames     int
	VideoCodec string
	HasAudio   bool
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame int
	FPS   float64
	Time  string
	Speed string
	Done  bool
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler ProgressFunc
	LogHandler      func(line string)
}

// ProgressFunc is a callback for progress updates during ffmpeg operations.
// Called periodically with progress information as the operation executes.
type ProgressFunc func(*Progress)
