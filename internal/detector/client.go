// Package detector HTTP-клиент внешнего сервиса детекции AI-текста.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/magabrotheeeer/aicheck/internal/lib/apperr"
	"github.com/magabrotheeeer/aicheck/internal/models"
)

const maxErrorBody = 512

// Client вызывает POST {baseURL}/v1/detect.
type Client struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт клиент детектора.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		apiKey:     apiKey,
		apiURL:     strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type detectRequest struct {
	Text string `json:"text"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, &buf)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Detect отправляет текст на анализ и возвращает проверенный результат.
func (c *Client) Detect(ctx context.Context, text string) (*models.DetectionResult, error) {
	const op = "detector.Detect"
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/detect", detectRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, apperr.ErrUpstream, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%s: unexpected status %s: %s: %w",
			op, resp.Status, strings.TrimSpace(string(msg)), apperr.ErrUpstream)
	}

	var result models.DetectionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%s: decode: %w: %w", op, apperr.ErrUpstream, err)
	}
	if err := validate(&result, text); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, apperr.ErrUpstream, err)
	}
	return &result, nil
}

// validate отбрасывает ответы с неизвестным вердиктом или оценкой вне [0, 1]
// и обрезает выделения по длине текста.
func validate(r *models.DetectionResult, text string) error {
	if !r.Classification.Valid() {
		return fmt.Errorf("unknown classification %q", r.Classification)
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		return fmt.Errorf("confidence score %v out of range", r.ConfidenceScore)
	}
	n := len([]rune(text))
	kept := r.Highlights[:0]
	for _, h := range r.Highlights {
		if h.Start < 0 || h.Start >= h.End || h.Start >= n {
			continue
		}
		h.End = min(h.End, n)
		kept = append(kept, h)
	}
	r.Highlights = kept
	if r.Suggestions == nil {
		r.Suggestions = []string{}
	}
	return nil
}
