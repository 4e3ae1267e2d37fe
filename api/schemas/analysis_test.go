package schemas_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/lumen-cli/api/schemas"
)

// TestStructJSONTags uses reflection to verify that the `json` tags on struct
// fields are correct. The result shape is consumed by downstream tooling, so
// the tags are part of the contract.
func TestStructJSONTags(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name         string
		structRef    interface{}
		expectedTags map[string]string
	}{
		{
			name:      "AnalysisResult",
			structRef: schemas.AnalysisResult{},
			expectedTags: map[string]string{
				"URL":             "url",
				"LoadTimeSeconds": "loadTime",
				"Issues":          "issues",
				"Screenshots":     "screenshots",
				"Lighthouse":      "lighthouse",
			},
		},
		{
			name:      "LighthouseMetrics",
			structRef: schemas.LighthouseMetrics{},
			expectedTags: map[string]string{
				"Available":        "available",
				"PerformanceScore": "performanceScore",
				"FCPSeconds":       "fcpSeconds",
				"LCPSeconds":       "lcpSeconds",
				"CLSValue":         "clsValue",
				"TBTMs":            "tbtMs",
				"Raw":              "-",
			},
		},
		{
			name:      "ScreenshotPaths",
			structRef: schemas.ScreenshotPaths{},
			expectedTags: map[string]string{
				"Desktop": "desktop",
				"Mobile":  "mobile",
			},
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			structType := reflect.TypeOf(tt.structRef)
			actualTags := make(map[string]string)

			for i := 0; i < structType.NumField(); i++ {
				field := structType.Field(i)
				jsonTag := field.Tag.Get("json")
				if jsonTag != "" {
					actualTags[field.Name] = jsonTag
				}
			}

			assert.Equal(t, tt.expectedTags, actualTags, "JSON tags for struct %s do not match expectations", tt.name)
		})
	}
}

// TestLighthouseMetricsNullFields verifies that metrics absent from the audit
// serialize as null instead of zero values.
func TestLighthouseMetricsNullFields(t *testing.T) {
	t.Parallel()

	score := 92.0
	m := schemas.LighthouseMetrics{
		Available:        true,
		PerformanceScore: &score,
	}

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, true, decoded["available"])
	assert.Equal(t, 92.0, decoded["performanceScore"])
	assert.Nil(t, decoded["fcpSeconds"])
	assert.Nil(t, decoded["lcpSeconds"])
	assert.Nil(t, decoded["clsValue"])
	assert.Nil(t, decoded["tbtMs"])
	assert.NotContains(t, decoded, "Raw")
}
