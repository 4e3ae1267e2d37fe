// File: api/schemas/analysis.go
package schemas

import "encoding/json"

// DeviceProfile selects the emulated device class for a page capture.
type DeviceProfile string

const (
	ProfileDesktop DeviceProfile = "desktop"
	ProfileMobile  DeviceProfile = "mobile"
)

// LighthouseMetrics carries the normalized output of a Lighthouse performance
// audit. Metric fields are pointers: a metric the audit did not report stays
// nil and serializes as null, never as a fabricated zero.
type LighthouseMetrics struct {
	// Available is false whenever the audit could not run or could not be
	// parsed. Consumers must treat all metric fields as absent in that case.
	Available bool `json:"available"`

	// PerformanceScore is the category score scaled to 0-100.
	PerformanceScore *float64 `json:"performanceScore"`
	// FCPSeconds is first-contentful-paint, converted to seconds.
	FCPSeconds *float64 `json:"fcpSeconds"`
	// LCPSeconds is largest-contentful-paint, converted to seconds.
	LCPSeconds *float64 `json:"lcpSeconds"`
	// CLSValue is cumulative-layout-shift, unitless.
	CLSValue *float64 `json:"clsValue"`
	// TBTMs is total-blocking-time in milliseconds.
	TBTMs *float64 `json:"tbtMs"`

	// Raw holds the full report body for debugging. Never serialized.
	Raw json.RawMessage `json:"-"`
}

// ScreenshotPaths records where the persisted captures ended up on disk.
// Empty paths mean the screenshots were discarded after grading.
type ScreenshotPaths struct {
	Desktop string `json:"desktop"`
	Mobile  string `json:"mobile"`
}

// AnalysisResult is the terminal record of one audited URL.
type AnalysisResult struct {
	URL string `json:"url"`
	// LoadTimeSeconds is the measured desktop navigation time. Graders may
	// substitute Lighthouse FCP in their prompts, but the reported value is
	// always the measurement.
	LoadTimeSeconds float64           `json:"loadTime"`
	Issues          []string          `json:"issues"`
	Screenshots     ScreenshotPaths   `json:"screenshots"`
	Lighthouse      LighthouseMetrics `json:"lighthouse"`
}
