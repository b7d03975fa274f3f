// Package detectors provides streaming anomaly detection over ledger records.
package detectors

import (
	"context"

	"github.com/hed1ad/goledger/pkg/record"
)

// Detector is the common interface for streaming anomaly detectors.
type Detector interface {
	// Observe adds a record to the history without judging it.
	Observe(r record.Record)

	// Check judges a record against the history seen so far.
	// It does not add the record to the history.
	Check(r record.Record) Score
}

// StreamDetector extends Detector with channel-based processing.
type StreamDetector interface {
	Detector

	// DetectStream checks then observes every record read from in and sends
	// one Score per record to out. It returns when in is closed or ctx is done.
	DetectStream(ctx context.Context, in <-chan record.Record, out chan<- Score) error
}

// Severity grades an anomaly.
type Severity string

const (
	SeverityNone     Severity = ""
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Score represents an anomaly detection result.
type Score struct {
	// Value is the amount that was judged.
	Value float64
	// ZScore is the signed distance from the mean in standard deviations.
	ZScore float64
	// Mean and StdDev describe the series at the time of the check.
	Mean   float64
	StdDev float64
	// IsAnomaly indicates if |ZScore| exceeds the threshold.
	IsAnomaly bool
	Severity  Severity
	// Description is a human-readable explanation, set for anomalies only.
	Description string
	// Record is the judged record, when the check was made for one.
	Record record.Record
}

// Config holds common configuration for detectors.
type Config struct {
	// Threshold is the |z| above which a value is anomalous.
	Threshold float64
	// MinSamples is the history a series needs before it can flag.
	MinSamples int
}

// DefaultConfig returns sensible defaults for detector configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:  2.0,
		MinSamples: 3,
	}
}
