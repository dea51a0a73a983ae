package expose

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/framesift/internal/config"
)

var namePattern = regexp.MustCompile(`^[0-9a-f]{8}-[A-Za-z0-9._-]+\.jpg$`)

func TestObjectName(t *testing.T) {
	name := ObjectName("Video frame 2")
	assert.Regexp(t, namePattern, name)
	assert.Contains(t, name, "-Video_frame_2.jpg")

	assert.NotEqual(t, ObjectName("x"), ObjectName("x"), "uid prefix is unique")
	assert.Regexp(t, `^[0-9a-f]{8}-frame\.jpg$`, ObjectName("///"))
}

func TestFileSinkExpose(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "www", "framesift")
	sink := NewFileSink(zerolog.Nop(), dir)

	path, err := sink.Expose(context.Background(), "porch frame 3", []byte{0xff, 0xd8, 0xff})
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.Regexp(t, namePattern, filepath.Base(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)
}

func TestFileSinkExposeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFileSink(zerolog.Nop(), t.TempDir()).Expose(ctx, "x", []byte{1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileSinkSweep(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(zerolog.Nop(), dir)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	sink.now = func() time.Time { return now }

	write := func(name string, age time.Duration) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
		mtime := now.Add(-age)
		require.NoError(t, os.Chtimes(path, mtime, mtime))
		return path
	}

	old := write("aaaaaaaa-old.jpg", 80*time.Hour)
	fresh := write("bbbbbbbb-new.jpg", time.Hour)
	notes := write("notes.txt", 100*time.Hour)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.jpg"), 0755))

	removed, err := sink.Sweep(context.Background(), 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, notes, "only jpg files are swept")
	assert.DirExists(t, filepath.Join(dir, "nested.jpg"))
}

func TestFileSinkSweepMissingDir(t *testing.T) {
	sink := NewFileSink(zerolog.Nop(), filepath.Join(t.TempDir(), "never-created"))
	removed, err := sink.Sweep(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestNewSinkDefaultsToFile(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(context.Background(), zerolog.Nop(), config.ExposeConfig{Dir: dir})
	require.NoError(t, err)

	fs, ok := sink.(*FileSink)
	require.True(t, ok)
	assert.Equal(t, dir, fs.Dir())
}

func TestNewMinIOSinkRequiresBucket(t *testing.T) {
	_, err := NewMinIOSink(context.Background(), zerolog.Nop(), config.MinIOConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}

type countingSweeper struct {
	mu        sync.Mutex
	calls     int
	retention time.Duration
	err       error
}

func (c *countingSweeper) Sweep(_ context.Context, retention time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.retention = retention
	return 2, c.err
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	_, err := NewScheduler(zerolog.Nop(), &countingSweeper{}, "not a schedule", time.Hour)
	assert.Error(t, err)
}

func TestSchedulerRunOnce(t *testing.T) {
	sweeper := &countingSweeper{}
	s, err := NewScheduler(zerolog.Nop(), sweeper, "@hourly", 72*time.Hour)
	require.NoError(t, err)

	s.RunOnce()
	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, 72*time.Hour, sweeper.retention)

	sweeper.err = errors.New("bucket gone")
	assert.NotPanics(t, s.RunOnce, "sweep errors are logged")
}

func TestSchedulerStartStop(t *testing.T) {
	s, err := NewScheduler(zerolog.Nop(), &countingSweeper{}, "@every 1h", time.Hour)
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
