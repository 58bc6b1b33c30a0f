package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"text/template"

	"github.com/coralrun/agentfsm/pkg/models"
)

// maxResponseBody bounds how much of a RequestTool's response body is kept
// in the resulting Step.
const maxResponseBody = 64 * 1024

func renderTemplate(tmplStr string, args map[string]any) (string, error) {
	if tmplStr == "" {
		return "", nil
	}
	t, err := template.New("request_tool").Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, args); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// executeRequestTool renders url/headers/body against args and performs the
// HTTP call, honoring the tool's configured timeout.
func executeRequestTool(ctx context.Context, client *http.Client, tool models.RequestTool, args map[string]any) (content string, execErr string) {
	url, err := renderTemplate(tool.URL, args)
	if err != nil {
		return "", fmt.Sprintf("render url: %v", err)
	}
	body, err := renderTemplate(tool.Body, args)
	if err != nil {
		return "", fmt.Sprintf("render body: %v", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, tool.Timeout())
	defer cancel()

	var bodyReader io.Reader
	if body != "" {
		bodyReader = bytes.NewBufferString(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, string(tool.Method), url, bodyReader)
	if err != nil {
		return "", fmt.Sprintf("build request: %v", err)
	}
	for k, v := range tool.Headers {
		renderedValue, err := renderTemplate(v, args)
		if err != nil {
			return "", fmt.Sprintf("render header %q: %v", k, err)
		}
		req.Header.Set(k, renderedValue)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Sprintf("%v: %v", ErrToolTimeout, err)
		}
		return "", fmt.Sprintf("transport error: %v", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	content = string(raw)
	if readErr != nil {
		return content, fmt.Sprintf("read response: %v", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return content, fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return content, ""
}
