package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/framesift/pkg/util"
)

// TestResults stores results from all tests for final summary
type TestResults struct {
	ExecutorPath   string
	ProbeResults   *VideoInfo
	KeyframesFound int
	GrabbedBytes   int
	Errors         []string
}

var globalResults = &TestResults{
	Errors: make([]string, 0),
}

// skipIfNoFFmpeg skips the test if ffmpeg is not available
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH - install with: brew install ffmpeg")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH - install with: brew install ffmpeg")
	}
}

// generateTestVideo renders a short synthetic clip with a keyframe every
// 10 frames
func generateTestVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mp4")
	cmd := exec.Command("ffmpeg", "-y", "-f", "lavfi",
		"-i", "testsrc=duration=2:size=320x240:rate=30",
		"-g", "10", "-pix_fmt", "yuv420p", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("could not generate test video: %v\n%s", err, out)
	}
	return path
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	exec, err := New(logger, Options{Threads: 2})
	if err != nil {
		globalResults.Errors = append(globalResults.Errors, fmt.Sprintf("Executor creation failed: %v", err))
		t.Fatalf("failed to create executor: %v", err)
	}
	return exec
}

func TestExecutorCreation(t *testing.T) {
	skipIfNoFFmpeg(t)

	exec := newTestExecutor(t)
	assert.NotEmpty(t, exec.ffmpegPath)
	assert.NotEmpty(t, exec.ffprobePath)

	globalResults.ExecutorPath = exec.ffmpegPath
	t.Logf("ffmpeg: %s", exec.ffmpegPath)
	t.Logf("ffprobe: %s", exec.ffprobePath)
}

func TestExecutorMissingBinary(t *testing.T) {
	_, err := New(zerolog.Nop(), Options{BinaryPath: "definitely-not-ffmpeg-binary"})
	assert.Error(t, err)
}

func TestRunRequiresArgs(t *testing.T) {
	e := &Executor{logger: zerolog.Nop()}
	assert.Error(t, e.Run(context.Background(), RunOptions{}))

	_, err := e.Output(context.Background(), nil)
	assert.Error(t, err)
}

func TestStreamOutputParsesProgress(t *testing.T) {
	e := &Executor{logger: zerolog.Nop()}
	input := strings.Join([]string{
		"frame=12",
		"fps=24.5",
		"out_time=00:00:00.500000",
		"speed=2.1x",
		"progress=continue",
		"frame=30",
		"progress=end",
	}, "\n")

	var got []Progress
	var lines int
	e.streamOutput(strings.NewReader(input), func(p *Progress) { got = append(got, *p) }, func(string) { lines++ })

	require.Len(t, got, 2)
	assert.Equal(t, 12, got[0].Frame)
	assert.InDelta(t, 24.5, got[0].FPS, 0.001)
	assert.Equal(t, "00:00:00.500000", got[0].Time)
	assert.False(t, got[0].Done)
	assert.Equal(t, 30, got[1].Frame)
	assert.True(t, got[1].Done)
	assert.Equal(t, 7, lines)
}

func TestProbeVideo(t *testing.T) {
	skipIfNoFFmpeg(t)

	testVideoPath := generateTestVideo(t)
	exec := newTestExecutor(t)

	start := time.Now()
	info, err := exec.ProbeVideo(context.Background(), testVideoPath)
	elapsed := time.Since(start)
	if err != nil {
		globalResults.Errors = append(globalResults.Errors, fmt.Sprintf("ProbeVideo failed: %v", err))
		t.Fatalf("ProbeVideo failed: %v", err)
	}
	globalResults.ProbeResults = info

	assert.Equal(t, 320, info.Width)
	assert.Equal(t, 240, info.Height)
	assert.NotZero(t, info.Duration)
	assert.InDelta(t, 30, info.FPS, 0.5)

	t.Logf("Video info: %dx%d, %.2f fps, duration: %v (probed in %v)",
		info.Width, info.Height, info.FPS, info.Duration, elapsed)
}

func TestProbeVideoInvalidFile(t *testing.T) {
	skipIfNoFFmpeg(t)

	exec := newTestExecutor(t)
	ctx := context.Background()

	_, err := exec.ProbeVideo(ctx, "nonexistent.mp4")
	assert.Error(t, err, "ProbeVideo should fail for non-existent file")

	invalidPath := filepath.Join(t.TempDir(), "invalid.txt")
	require.NoError(t, os.WriteFile(invalidPath, []byte("not a video"), 0644))

	_, err = exec.ProbeVideo(ctx, invalidPath)
	assert.Error(t, err, "ProbeVideo should fail for invalid video file")
}

func TestExtractKeyframes(t *testing.T) {
	skipIfNoFFmpeg(t)

	testVideoPath := generateTestVideo(t)
	exec := newTestExecutor(t)
	outDir := t.TempDir()

	err := exec.ExtractKeyframes(context.Background(), testVideoPath, outDir)
	if err != nil {
		globalResults.Errors = append(globalResults.Errors, fmt.Sprintf("ExtractKeyframes failed: %v", err))
		t.Fatalf("ExtractKeyframes failed: %v", err)
	}

	files, err := util.ListFiles(outDir)
	require.NoError(t, err)
	globalResults.KeyframesFound = len(files)

	// 60 frames with a GOP of 10 gives about 6 key frames, far fewer than 60.
	assert.NotEmpty(t, files)
	assert.Less(t, len(files), 30)
	assert.Equal(t, "frame00001.jpg", filepath.Base(files[0]))
}

func TestExtractKeyframesCancelled(t *testing.T) {
	skipIfNoFFmpeg(t)

	testVideoPath := generateTestVideo(t)
	exec := newTestExecutor(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := exec.ExtractKeyframes(ctx, testVideoPath, t.TempDir())
	assert.Error(t, err)
}

func TestGrabFrame(t *testing.T) {
	skipIfNoFFmpeg(t)

	testVideoPath := generateTestVideo(t)
	exec := newTestExecutor(t)

	data, err := exec.GrabFrame(context.Background(), testVideoPath)
	if err != nil {
		globalResults.Errors = append(globalResults.Errors, fmt.Sprintf("GrabFrame failed: %v", err))
		t.Fatalf("GrabFrame failed: %v", err)
	}
	globalResults.GrabbedBytes = len(data)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
}

// TestMain runs after all tests and prints summary
func TestMain(m *testing.M) {
	code := m.Run()

	printTestSummary()

	os.Exit(code)
}

func printTestSummary() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("TEST SUMMARY - FFmpeg Layer")
	fmt.Println(strings.Repeat("=", 80))

	if globalResults.ExecutorPath != "" {
		fmt.Printf("\nFFmpeg Binary: %s\n", globalResults.ExecutorPath)
	}

	if globalResults.ProbeResults != nil {
		fmt.Println("\nVIDEO PROBE RESULTS:")
		fmt.Printf("  Resolution:    %dx%d @ %.2f fps\n",
			globalResults.ProbeResults.Width,
			globalResults.ProbeResults.Height,
			globalResults.ProbeResults.FPS)
		fmt.Printf("  Duration:      %v\n", globalResults.ProbeResults.Duration)
		fmt.Printf("  Video Codec:   %s\n", globalResults.ProbeResults.VideoCodec)
	}

	fmt.Println("\nEXTRACTION RESULTS:")
	fmt.Printf("  Keyframes:     %d extracted\n", globalResults.KeyframesFound)
	fmt.Printf("  Grabbed frame: %d bytes\n", globalResults.GrabbedBytes)

	if len(globalResults.Errors) > 0 {
		fmt.Println("\nERRORS ENCOUNTERED:")
		for i, err := range globalResults.Errors {
			fmt.Printf("  %d. %s\n", i+1, err)
		}
	} else {
		fmt.Println("\nNo critical errors")
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()
}
