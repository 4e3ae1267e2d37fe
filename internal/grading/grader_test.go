// File: internal/grading/grader_test.go
package grading

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/lumen-cli/api/schemas"
	"github.com/xkilldash9x/lumen-cli/internal/config"
)

func testGradingConfig() config.GradingConfig {
	return config.GradingConfig{
		Provider:    "gemini",
		Model:       "gemini-2.0-flash",
		APIKey:      "test-key",
		MaxTokens:   1500,
		Temperature: 0.0,
		Seed:        12345,
		APITimeout:  10 * time.Second,
		Thresholds: config.ThresholdConfig{
			LoadTimeSeconds:  3.0,
			FCPSeconds:       2.5,
			PerformanceScore: 70,
		},
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestNewGrader(t *testing.T) {
	t.Parallel()
	logger := zaptest.NewLogger(t)

	t.Run("builds gemini grader", func(t *testing.T) {
		cfg := testGradingConfig()
		grader, err := NewGrader(cfg, logger)
		require.NoError(t, err)
		assert.IsType(t, &geminiGrader{}, grader)
	})

	t.Run("builds openai grader", func(t *testing.T) {
		cfg := testGradingConfig()
		cfg.Provider = "openai"
		cfg.Model = "gpt-4o"
		grader, err := NewGrader(cfg, logger)
		require.NoError(t, err)
		assert.IsType(t, &openAIGrader{}, grader)
	})

	t.Run("rejects unknown provider", func(t *testing.T) {
		cfg := testGradingConfig()
		cfg.Provider = "anthropic"
		_, err := NewGrader(cfg, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported grading provider")
	})

	t.Run("requires an API key", func(t *testing.T) {
		cfg := testGradingConfig()
		cfg.APIKey = ""
		_, err := NewGrader(cfg, logger)
		require.Error(t, err)

		cfg.Provider = "openai"
		_, err = NewGrader(cfg, logger)
		require.Error(t, err)
	})
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()
	prompt := buildPrompt(4.2, " (Playwright timing)", 3.0)

	assert.Contains(t, prompt, "Load time: 4.2 seconds (Playwright timing) (FAIL if > 3 seconds)")
	assert.Contains(t, prompt, "R1. Users are not able to understand")
	assert.Contains(t, prompt, "taking 4.2 seconds to load")
	assert.Contains(t, prompt, "R13. Inconsistent spacing between elements")
	assert.Contains(t, prompt, "one per line")
}

func TestPromptInputsPrefersLighthouseFCP(t *testing.T) {
	t.Parallel()
	req := schemas.GradeRequest{
		LoadTimeSeconds: 7.5,
		Lighthouse: schemas.LighthouseMetrics{
			Available:        true,
			FCPSeconds:       floatPtr(1.8),
			PerformanceScore: floatPtr(88),
		},
	}

	loadTime, perfInfo := promptInputs(req)
	assert.InDelta(t, 1.8, loadTime, 0.001)
	assert.Equal(t, " (Lighthouse FCP: 1.8s, Performance: 88/100)", perfInfo)
}

func TestPromptInputsFallsBackToMeasuredTime(t *testing.T) {
	t.Parallel()
	req := schemas.GradeRequest{
		LoadTimeSeconds: 7.5,
		Lighthouse:      schemas.LighthouseMetrics{Available: false},
	}

	loadTime, perfInfo := promptInputs(req)
	assert.InDelta(t, 7.5, loadTime, 0.001)
	assert.Equal(t, " (Playwright timing)", perfInfo)
}

func TestParseIssues(t *testing.T) {
	t.Parallel()
	verdict := "R3. CTA is missing in the hero section.\n\n  R11. Poor contrast between the text and background makes it difficult to read.  \n"
	issues := ParseIssues(verdict)

	require.Len(t, issues, 2)
	assert.Equal(t, "R3. CTA is missing in the hero section.", issues[0])
	assert.Equal(t, "R11. Poor contrast between the text and background makes it difficult to read.", issues[1])

	assert.Empty(t, ParseIssues("   \n\n  "))
}

func TestFallbackIssues(t *testing.T) {
	t.Parallel()
	thresholds := testGradingConfig().Thresholds

	t.Run("fast page with no audit yields nothing", func(t *testing.T) {
		issues := FallbackIssues(1.0, schemas.LighthouseMetrics{}, thresholds)
		assert.Empty(t, issues)
	})

	t.Run("slow measured load fails R2", func(t *testing.T) {
		issues := FallbackIssues(5.3, schemas.LighthouseMetrics{}, thresholds)
		require.Len(t, issues, 1)
		assert.Contains(t, issues[0], "taking 5.3 seconds to load")
	})

	t.Run("lighthouse metrics add their own failures", func(t *testing.T) {
		lh := schemas.LighthouseMetrics{
			Available:        true,
			FCPSeconds:       floatPtr(4.0),
			PerformanceScore: floatPtr(42),
		}
		issues := FallbackIssues(1.0, lh, thresholds)
		require.Len(t, issues, 2)
		assert.Contains(t, issues[0], "First Contentful Paint at 4.0 seconds")
		assert.Contains(t, issues[1], "performance score is poor at 42/100")
	})

	t.Run("unavailable audit contributes nothing", func(t *testing.T) {
		lh := schemas.LighthouseMetrics{
			Available:  false,
			FCPSeconds: floatPtr(9.0),
		}
		issues := FallbackIssues(1.0, lh, thresholds)
		assert.Empty(t, issues)
	})
}

func TestGeminiGrade(t *testing.T) {
	verdictText := "R3. CTA is missing in the hero section."

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var payload geminiRequestPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload.Contents, 1)
		require.Len(t, payload.Contents[0].Parts, 3, "text part plus two images")
		assert.Contains(t, payload.Contents[0].Parts[0].Text, "UX/UI expert")
		assert.Equal(t, "image/png", payload.Contents[0].Parts[1].InlineData.MimeType)
		assert.NotEmpty(t, payload.Contents[0].Parts[2].InlineData.Data)

		resp := geminiResponsePayload{}
		resp.Candidates = []struct {
			Content      geminiContent `json:"content"`
			FinishReason string        `json:"finishReason"`
		}{
			{Content: geminiContent{Parts: []geminiPart{{Text: verdictText}}}, FinishReason: "STOP"},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	cfg := testGradingConfig()
	cfg.Endpoint = server.URL
	grader, err := newGeminiGrader(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	verdict, err := grader.Grade(context.Background(), schemas.GradeRequest{
		URL:             "https://example.com",
		DesktopPNG:      []byte("desktop-bytes"),
		MobilePNG:       []byte("mobile-bytes"),
		LoadTimeSeconds: 1.2,
	})
	require.NoError(t, err)
	assert.Equal(t, verdictText, verdict)
	assert.Equal(t, int32(1), requests.Load())
}

func TestGeminiGradeRetriesTransientErrors(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		resp := geminiResponsePayload{}
		resp.Candidates = []struct {
			Content      geminiContent `json:"content"`
			FinishReason string        `json:"finishReason"`
		}{
			{Content: geminiContent{Parts: []geminiPart{{Text: "ok"}}}, FinishReason: "STOP"},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	cfg := testGradingConfig()
	cfg.Endpoint = server.URL
	grader, err := newGeminiGrader(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	verdict, err := grader.Grade(context.Background(), schemas.GradeRequest{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "ok", verdict)
	assert.GreaterOrEqual(t, requests.Load(), int32(2))
}

func TestGeminiGradeFailsFastOnPermanentError(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	cfg := testGradingConfig()
	cfg.Endpoint = server.URL
	grader, err := newGeminiGrader(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = grader.Grade(context.Background(), schemas.GradeRequest{URL: "https://example.com"})
	require.Error(t, err)
	assert.Equal(t, int32(1), requests.Load(), "4xx must not be retried")
}
