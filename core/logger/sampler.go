package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratioSampler lets the first numerator of every denominator events through.
// A zero ratio lets everything through.
type ratioSampler struct {
	ratio atomic.Uint64 // numerator<<32 | denominator
	seen  atomic.Uint64
}

func newRatioSampler(numerator, denominator int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(numerator, denominator)
	return s
}

// Set replaces the ratio and restarts the cycle.
func (s *ratioSampler) Set(numerator, denominator int) {
	var r uint64
	if numerator > 0 && denominator > 0 {
		numerator = min(numerator, denominator)
		r = uint64(uint32(numerator))<<32 | uint64(uint32(denominator))
	}
	s.ratio.Store(r)
	s.seen.Store(0)
}

// Allow reports whether the next event passes.
func (s *ratioSampler) Allow() bool {
	r := s.ratio.Load()
	if r == 0 {
		return true
	}
	num, den := r>>32, r&0xffffffff
	return (s.seen.Add(1)-1)%den < num
}

// parseRatioSpec reads "n/d" or "d" (meaning 1/d). Anything else yields 0, 0.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if num, den, ok := strings.Cut(spec, "/"); ok {
		n, err1 := strconv.Atoi(strings.TrimSpace(num))
		d, err2 := strconv.Atoi(strings.TrimSpace(den))
		if err1 != nil || err2 != nil {
			return 0, 0
		}
		return n, d
	}
	d, err := strconv.Atoi(spec)
	if err != nil || d <= 0 {
		return 0, 0
	}
	return 1, d
}
