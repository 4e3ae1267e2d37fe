// File: internal/grading/grader.go
package grading

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/lumen-cli/api/schemas"
	"github.com/xkilldash9x/lumen-cli/internal/config"
)

// ruleOrder fixes the checklist ordering in prompts and fallback output.
var ruleOrder = []string{
	"R1", "R2", "R3", "R4", "R5", "R6", "R7", "R8", "R9", "R10", "R11", "R12", "R13",
}

// responseTemplates are the exact issue strings the grader is instructed to
// return. R2 takes the measured load time.
var responseTemplates = map[string]string{
	"R1":  "Users are not able to understand what the website is about at first glance.",
	"R2":  "Your website's core vitals have failed on Google PageSpeed, which could lead to a significant drop in search rankings. Your website is slow, taking %.1f seconds to load, which is more than the recommended 3 seconds.",
	"R3":  "CTA is missing in the hero section.",
	"R4":  "Your website is not mobile responsive, affecting user experience on different devices.",
	"R5":  "The design lacks human images, making it harder for users to connect emotionally.",
	"R6":  "Font or Color is/are inconsistent throughout the website, leading to a disjointed design.",
	"R7":  "Poor navigation menu, making it difficult for users to navigate.",
	"R8":  "Buttons are unresponsive on hover, making it difficult to identify interactive elements.",
	"R9":  "The search bar is not working.",
	"R10": "The website contains too much text, overwhelming users and affecting readability.",
	"R11": "Poor contrast between the text and background makes it difficult to read.",
	"R12": "There are alignment issues on the website, leading to a disorganized design.",
	"R13": "Inconsistent spacing between elements is leading to a cluttered and unappealing design.",
}

// NewGrader builds the configured vision grading provider.
func NewGrader(cfg config.GradingConfig, logger *zap.Logger) (schemas.Grader, error) {
	switch cfg.Provider {
	case "gemini":
		return newGeminiGrader(cfg, logger)
	case "openai":
		return newOpenAIGrader(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported grading provider: %q", cfg.Provider)
	}
}

// promptInputs picks the load time the model is told about. Lighthouse FCP
// wins over the measured navigation time when the audit produced one.
func promptInputs(req schemas.GradeRequest) (loadTime float64, perfInfo string) {
	lh := req.Lighthouse
	if lh.Available && lh.FCPSeconds != nil {
		score := "N/A"
		if lh.PerformanceScore != nil {
			score = fmt.Sprintf("%.0f", *lh.PerformanceScore)
		}
		return *lh.FCPSeconds, fmt.Sprintf(" (Lighthouse FCP: %.1fs, Performance: %s/100)", *lh.FCPSeconds, score)
	}
	return req.LoadTimeSeconds, " (Playwright timing)"
}

// buildPrompt renders the systematic checklist prompt, substituting the load
// time into the criteria and the R2 template example.
func buildPrompt(loadTime float64, perfInfo string, loadThreshold float64) string {
	var examples strings.Builder
	for _, key := range ruleOrder {
		template := responseTemplates[key]
		if strings.Contains(template, "%.1f") {
			template = fmt.Sprintf(template, loadTime)
		}
		fmt.Fprintf(&examples, "%s. %s\n", key, template)
	}

	return fmt.Sprintf(`You are a UX/UI expert conducting a systematic website analysis. Analyze these screenshots methodically and return ONLY the failed criteria.

ANALYSIS CRITERIA:
1. Hero section clarity: Can you immediately understand what this website offers?
2. Load time: %.1f seconds%s (FAIL if > %.0f seconds)
3. Call-to-Action: Is there a prominent CTA button in the hero section?
4. Mobile responsiveness: Compare desktop vs mobile - are they properly adapted?
5. Human connection: Are there visible human faces or emotional imagery?
6. Design consistency: Are fonts, colors, and layouts uniform?
7. Navigation: Is the menu structure clear and logical?
8. Interactive elements: Do buttons/links appear clickable?
9. Search functionality: Is there a visible search feature?
10. Content organization: Is text well-structured and not overwhelming?
11. Text contrast: Is text easily readable against backgrounds?
12. Text alignment: Are there obvious alignment problems?
13. Element spacing: Is spacing between elements consistent and clean?

STRICT INSTRUCTIONS:
- Examine BOTH desktop and mobile screenshots carefully
- Only return responses for criteria that clearly FAIL
- Use exact response format below
- Be consistent in your evaluation

RESPONSE FORMAT (return only failed ones):
%s
Return only the R responses that apply, one per line.`, loadTime, perfInfo, loadThreshold, examples.String())
}

// ParseIssues splits a grader verdict into individual issues: one trimmed,
// non-empty line each.
func ParseIssues(text string) []string {
	issues := make([]string, 0)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			issues = append(issues, line)
		}
	}
	return issues
}

// FallbackIssues is the deterministic verdict used when the model call fails.
// It applies only the performance rules, which need no vision.
func FallbackIssues(loadTime float64, lh schemas.LighthouseMetrics, thresholds config.ThresholdConfig) []string {
	issues := make([]string, 0)

	if loadTime > thresholds.LoadTimeSeconds {
		issues = append(issues, "R2. "+fmt.Sprintf(responseTemplates["R2"], loadTime))
	}

	if lh.Available {
		if lh.FCPSeconds != nil && *lh.FCPSeconds > thresholds.FCPSeconds {
			issues = append(issues, fmt.Sprintf(
				"R2. Your website's core vitals have failed on Google PageSpeed, which could lead to a significant drop in search rankings. Your website is slow, with First Contentful Paint at %.1f seconds.",
				*lh.FCPSeconds))
		}
		if lh.PerformanceScore != nil && *lh.PerformanceScore < thresholds.PerformanceScore {
			issues = append(issues, fmt.Sprintf(
				"R2. Your website's performance score is poor at %.0f/100, indicating optimization issues that affect search rankings.",
				*lh.PerformanceScore))
		}
	}
	return issues
}
