package recorder

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/framesift/internal/frames"
	"github.com/kikiluvv/framesift/internal/imaging"
	"github.com/kikiluvv/framesift/internal/metrics"
	"github.com/kikiluvv/framesift/internal/scoring"
	"github.com/kikiluvv/framesift/internal/source"
)

// Options configures a recording run
type Options struct {
	Duration time.Duration
	UseNames bool
}

// Recorder captures frames from several sources in parallel, each at a
// self-correcting polling cadence
type Recorder struct {
	logger zerolog.Logger
	scorer scoring.Scorer
	clock  Clock
}

// New creates a recorder on the wall clock
func New(logger zerolog.Logger, scorer scoring.Scorer) *Recorder {
	return NewWithClock(logger, scorer, realClock{})
}

// NewWithClock creates a recorder with an explicit clock
func NewWithClock(logger zerolog.Logger, scorer scoring.Scorer, clock Clock) *Recorder {
	return &Recorder{
		logger: logger.With().Str("component", "recorder").Logger(),
		scorer: scorer,
		clock:  clock,
	}
}

// Interval picks the polling period for a recording of length d
func Interval(d time.Duration) time.Duration {
	switch {
	case d < 3*time.Second:
		return time.Second
	case d < 10*time.Second:
		return 2 * time.Second
	case d < 30*time.Second:
		return 4 * time.Second
	case d < 60*time.Second:
		return 6 * time.Second
	default:
		return 10 * time.Second
	}
}

// Record runs one capture loop per source and waits for all of them. The
// result has one slot per source, in the order given. Each slot holds that
// source's frames in capture order, the first one carrying the sentinel
// score. A cancelled ctx stops every loop at its next suspension point and
// is reported alongside whatever was captured.
func (r *Recorder) Record(ctx context.Context, sources []source.Source, opts Options) ([][]frames.Record, error) {
	interval := Interval(opts.Duration)
	results := make([][]frames.Record, len(sources))

	r.logger.Info().
		Int("sources", len(sources)).
		Dur("duration", opts.Duration).
		Dur("interval", interval).
		Msg("recording")

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src source.Source) {
			defer wg.Done()
			metrics.ActiveRecorders.Inc()
			defer metrics.ActiveRecorders.Dec()

			results[i] = r.capture(ctx, i, src, opts, interval)
		}(i, src)
	}
	wg.Wait()

	return results, ctx.Err()
}

// capture is the per-source loop. It owns prev exclusively.
func (r *Recorder) capture(ctx context.Context, index int, src source.Source, opts Options, interval time.Duration) []frames.Record {
	logger := r.logger.With().Str("source", src.ID()).Logger()

	var (
		records        []frames.Record
		prev           *image.Gray
		seq            int
		firstIteration time.Duration
		firstDone      bool
	)

	start := r.clock.Now()
	for r.clock.Now().Sub(start) < opts.Duration+firstIteration {
		if ctx.Err() != nil {
			break
		}

		fetchStart := r.clock.Now()
		data, err := src.Fetch(ctx)
		if err != nil || len(data) == 0 {
			if ctx.Err() != nil {
				break
			}
			metrics.FetchFailuresTotal.WithLabelValues(src.ID()).Inc()
			logger.Warn().Err(err).Msg("no frame this tick")

			// wait out the rest of the tick before trying again
			if err := r.clock.Sleep(ctx, max(0, interval-r.clock.Now().Sub(fetchStart))); err != nil {
				break
			}
			continue
		}
		fetchDuration := r.clock.Now().Sub(fetchStart)

		decodeStart := r.clock.Now()
		gray, err := imaging.GrayFromBytes(data)
		if err != nil {
			metrics.DecodeErrorsTotal.WithLabelValues("stream").Inc()
			logger.Error().Err(err).Msg("skipping undecodable frame")
		} else {
			score := frames.Sentinel
			if prev != nil {
				score = r.scorer.Score(prev, gray)
			}
			records = append(records, frames.Record{
				Label:  frames.StreamLabel(src.Name(), index, seq, opts.UseNames),
				Source: src.ID(),
				Seq:    seq,
				Score:  score,
				Data:   data,
			})
			prev = gray
			seq++
			metrics.FramesCapturedTotal.WithLabelValues(src.ID()).Inc()
		}
		decodeDuration := r.clock.Now().Sub(decodeStart)

		sleep := max(0, interval-fetchDuration-decodeDuration)

		logger.Debug().
			Dur("fetch", fetchDuration).
			Dur("decode", decodeDuration).
			Dur("sleep", sleep).
			Msg("captured")

		if !firstDone {
			firstDone = true
			firstIteration = r.clock.Now().Sub(start)
			logger.Info().
				Dur("first_iteration", firstIteration).
				Dur("sleep", sleep).
				Msg("first iteration complete, deadline extended")
		}

		if err := r.clock.Sleep(ctx, sleep); err != nil {
			break
		}
	}

	logger.Info().Int("frames", len(records)).Msg("capture finished")
	return records
}
