// File: api/schemas/interfaces.go
package schemas

import "context"

// AuditClient runs a performance audit against a URL. Implementations never
// fail the caller: any runtime, execution, or parse problem yields metrics
// with Available set to false.
type AuditClient interface {
	Audit(ctx context.Context, url string) LighthouseMetrics
}

// GradeRequest is everything a vision grader needs to judge one page.
type GradeRequest struct {
	URL string
	// DesktopPNG is required; MobilePNG may equal DesktopPNG when the
	// mobile capture fell back to the desktop image.
	DesktopPNG []byte
	MobilePNG  []byte
	// LoadTimeSeconds is the measured desktop navigation time. When the
	// audit reports FCP, graders prefer it for the prompt.
	LoadTimeSeconds float64
	Lighthouse      LighthouseMetrics
}

// Grader submits page captures to a vision-capable model and returns its raw
// textual verdict, one issue per line.
type Grader interface {
	Grade(ctx context.Context, req GradeRequest) (string, error)
}
