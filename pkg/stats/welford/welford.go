// Package welford maintains streaming mean and variance with Welford's method.
package welford

import "math"

const (
	// Epsilon is the smallest standard deviation a z-score is computed against.
	Epsilon = 1e-4
	// MinSamples is the history needed before a value can be judged anomalous.
	MinSamples = 3
)

// Stats accumulates one series in O(1) per value.
type Stats struct {
	count     int
	mean      float64
	m2        float64
	min       float64
	max       float64
	sum       float64
	anomalies int
}

// Summary is a value copy of a series for reporting.
type Summary struct {
	Count     int
	Mean      float64
	StdDev    float64
	Min       float64
	Max       float64
	Sum       float64
	Anomalies int
}

// Update adds v to the series.
func (s *Stats) Update(v float64) {
	s.count++
	delta := v - s.mean
	s.mean += delta / float64(s.count)
	s.m2 += delta * (v - s.mean)
	s.sum += v

	if s.count == 1 {
		s.min, s.max = v, v
		return
	}
	if v < s.min {
		s.min = v
	}
	if v > s.max {
		s.max = v
	}
}

// Remove reverses a prior Update of v. Min and max are not restored, so
// they stay an outer bound of the remaining values.
func (s *Stats) Remove(v float64) {
	if s.count == 0 {
		return
	}
	if s.count == 1 {
		flagged := s.anomalies
		s.Reset()
		s.anomalies = flagged
		return
	}

	delta := v - s.mean
	s.count--
	s.mean -= delta / float64(s.count)
	s.m2 -= delta * (v - s.mean)
	if s.m2 < 0 {
		s.m2 = 0
	}
	s.sum -= v
}

// Mean returns the running mean.
func (s *Stats) Mean() float64 { return s.mean }

// Variance returns the sample variance, 0 with fewer than two values.
func (s *Stats) Variance() float64 {
	if s.count < 2 {
		return 0
	}
	return s.m2 / float64(s.count-1)
}

// PopulationVariance returns the variance normalized by n.
func (s *Stats) PopulationVariance() float64 {
	if s.count == 0 {
		return 0
	}
	return s.m2 / float64(s.count)
}

// StdDev returns the sample standard deviation.
func (s *Stats) StdDev() float64 { return math.Sqrt(s.Variance()) }

// Min returns the smallest value seen, or 0 before the first update.
func (s *Stats) Min() float64 { return s.min }

// Max returns the largest value seen, or 0 before the first update.
func (s *Stats) Max() float64 { return s.max }

// Sum returns the total of the values currently held.
func (s *Stats) Sum() float64 { return s.sum }

// Count returns the number of values currently held.
func (s *Stats) Count() int { return s.count }

// Anomalies returns how many values IsAnomaly flagged.
func (s *Stats) Anomalies() int { return s.anomalies }

// ZScore returns how many standard deviations v lies from the mean.
// It is 0 when the deviation is below Epsilon.
func (s *Stats) ZScore(v float64) float64 {
	sd := s.StdDev()
	if sd < Epsilon {
		return 0
	}
	return (v - s.mean) / sd
}

// IsAnomaly reports whether |z(v)| exceeds threshold. Series with fewer than
// MinSamples values never flag. A positive answer is counted.
func (s *Stats) IsAnomaly(v, threshold float64) bool {
	return s.IsAnomalyWith(v, threshold, MinSamples)
}

// IsAnomalyWith is IsAnomaly with a caller-chosen minimum history.
func (s *Stats) IsAnomalyWith(v, threshold float64, minSamples int) bool {
	if s.count < minSamples {
		return false
	}
	if math.Abs(s.ZScore(v)) > threshold {
		s.anomalies++
		return true
	}
	return false
}

// Reset clears the series.
func (s *Stats) Reset() {
	*s = Stats{}
}

// Snapshot returns a copy of the current state.
func (s *Stats) Snapshot() Summary {
	return Summary{
		Count:     s.count,
		Mean:      s.mean,
		StdDev:    s.StdDev(),
		Min:       s.min,
		Max:       s.max,
		Sum:       s.sum,
		Anomalies: s.anomalies,
	}
}
