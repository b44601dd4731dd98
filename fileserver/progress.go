package fileserver

import (
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
)

// ProgressFunc receives the number of payload bytes read so far
// and the current speed in bytes per second.
type ProgressFunc func(bytes int64, speed int64)

// progressReader wraps an io.Reader and reports progress.
type progressReader struct {
	src      io.Reader
	report   ProgressFunc
	interval time.Duration
	bytes    atomic.Int64
	closed   chan struct{}
	wg       sync.WaitGroup
}

func newProgressReader(src io.Reader, clock mclock.Clock, interval time.Duration, report ProgressFunc) *progressReader {
	r := &progressReader{
		src:      src,
		report:   report,
		interval: interval,
		closed:   make(chan struct{}),
	}
	timer := clock.NewTimer(interval)
	r.wg.Add(1)
	go r.reportLoop(timer, clock.Now())
	return r
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	r.bytes.Add(int64(n))
	return n, err
}

// close stops the progress reporting loop.
func (r *progressReader) close() {
	close(r.closed)
	r.wg.Wait()
}

// reportLoop periodically invokes the progress reporting function.
func (r *progressReader) reportLoop(timer mclock.ChanTimer, lastRead mclock.AbsTime) {
	defer r.wg.Done()

	var (
		lastBytes int64
		sma       = newSMA(10)
	)
	defer timer.Stop()
	for {
		select {
		case now := <-timer.C():
			bytes := r.bytes.Load()
			diff := bytes - lastBytes
			sma.sample(float64(diff) / now.Sub(lastRead).Seconds())
			lastRead, lastBytes = now, bytes
			r.report(bytes, int64(math.Round(sma.value())))
			timer.Reset(r.interval)
		case <-r.closed:
			return
		}
	}
}

// sma implements a simple moving average.
type sma struct {
	samples []float64
	i       int
}

func newSMA(nsamples int) *sma {
	return &sma{
		samples: make([]float64, 0, nsamples),
	}
}

// sample adds a new sample.
func (s *sma) sample(v float64) {
	if len(s.samples) < cap(s.samples) {
		s.samples = append(s.samples, v)
	} else {
		s.samples[s.i] = v
		s.i = (s.i + 1) % len(s.samples)
	}
}

// value returns the average of the collected samples.
func (s *sma) value() float64 {
	if len(s.samples) == 0 {
		return 0
	}
	var sum float64
	for i := range s.samples {
		sum += s.samples[i]
	}
	return sum / float64(len(s.samples))
}
