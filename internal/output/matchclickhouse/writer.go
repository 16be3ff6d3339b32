package matchclickhouse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"opsmemory/pkg/models"
)

// Config configures the ClickHouse HTTP writer.
type Config struct {
	URL      string
	Database string
	Table    string
	Username string
	Password string
	Timeout  time.Duration
	Headers  map[string]string
}

// Writer inserts pattern matches into ClickHouse via HTTP JSONEachRow.
type Writer struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

// row is the flat table shape of a PatternMatch.
type row struct {
	ID               string   `json:"id"`
	PatternType      string   `json:"pattern_type"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Confidence       float64  `json:"confidence"`
	Severity         string   `json:"severity"`
	AffectedEntities []string `json:"affected_entities"`
	WindowStart      string   `json:"window_start"`
	WindowEnd        string   `json:"window_end"`
	Evidence         []string `json:"evidence"`
	Recommendations  []string `json:"recommendations"`
	Details          string   `json:"details"`
	DetectedAt       string   `json:"detected_at"`
}

const timeLayout = "2006-01-02 15:04:05"

// NewWriter creates a ClickHouse HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("clickhouse URL is empty")
	}
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.Table == "" {
		cfg.Table = "pattern_matches"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	q := fmt.Sprintf("INSERT INTO %s.%s FORMAT JSONEachRow", quoteIdent(cfg.Database), quoteIdent(cfg.Table))
	endpoint := strings.TrimRight(cfg.URL, "/") + "/?query=" + url.QueryEscape(q)

	headers := make(map[string]string, len(cfg.Headers)+2)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.Username != "" {
		headers["X-ClickHouse-User"] = cfg.Username
	}
	if cfg.Password != "" {
		headers["X-ClickHouse-Key"] = cfg.Password
	}

	return &Writer{
		endpoint: endpoint,
		headers:  headers,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func toRow(m models.PatternMatch) (row, error) {
	details := "{}"
	if len(m.Details) > 0 {
		b, err := json.Marshal(m.Details)
		if err != nil {
			return row{}, err
		}
		details = string(b)
	}
	return row{
		ID:               m.ID,
		PatternType:      string(m.Type),
		Name:             m.Name,
		Description:      m.Description,
		Confidence:       m.Confidence,
		Severity:         string(m.Severity),
		AffectedEntities: nonNil(m.AffectedEntities),
		WindowStart:      m.Window.Start.UTC().Format(timeLayout),
		WindowEnd:        m.Window.End.UTC().Format(timeLayout),
		Evidence:         nonNil(m.Evidence),
		Recommendations:  nonNil(m.Recommendations),
		Details:          details,
		DetectedAt:       m.DetectedAt.UTC().Format(timeLayout),
	}, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// WriteMatches inserts a batch of matches.
func (w *Writer) WriteMatches(matches []models.PatternMatch) error {
	if len(matches) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, m := range matches {
		r, err := toRow(m)
		if err != nil {
			return fmt.Errorf("failed to marshal match details: %w", err)
		}
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to marshal pattern match: %w", err)
		}
	}

	req, err := http.NewRequest(http.MethodPost, w.endpoint, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("clickhouse request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("clickhouse request failed with status %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// Close releases resources.
func (w *Writer) Close() error {
	return nil
}

func quoteIdent(v string) string {
	return "`" + strings.ReplaceAll(v, "`", "") + "`"
}
