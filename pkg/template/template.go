// Package template resolves placeholders in step configuration and renders Go
// text templates for the transform action.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/bizflow/pkg/models"
)

// RenderWithContext renders templateStr with the run's merged scope plus the
// "env" and "execution" namespaces.
func RenderWithContext(templateStr string, executionCtx *models.ExecutionContext) (any, error) {
	data := executionCtx.Scope()
	data["env"] = envVars()
	data["execution"] = map[string]any{
		"id":         executionCtx.ExecutionID,
		"workflowId": executionCtx.WorkflowID,
	}

	return Render(templateStr, data)
}

// Render executes a text/template and parses the output as JSON, a number or a
// boolean when it looks like one.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("transform").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)
				if _, err := rand.Read(num); err != nil {
					return 0
				}

				return int(num[0]) % max
			},
			"json": func(v any) (string, error) {
				data, err := json.Marshal(v)

				return string(data), err
			},
			"default": func(fallback, v any) any {
				if v == nil || v == "" {
					return fallback
				}

				return v
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return parseOutput(buf.String())
}

func parseOutput(raw string) (any, error) {
	result := strings.TrimSpace(raw)

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any
		if err := json.Unmarshal([]byte(result), &jsonResult); err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", result, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

func envVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if ok {
			envMap[key] = value
		}
	}

	return envMap
}
