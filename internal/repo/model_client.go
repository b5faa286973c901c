package repo

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/miradorstack/mirador-alarmcorr/internal/cache"
	"github.com/miradorstack/mirador-alarmcorr/internal/models"
	"github.com/miradorstack/mirador-alarmcorr/internal/utils"
)

// ModelClient asks an external scoring model for incident confidence and root cause.
// It satisfies engine.Scorer and engine.Estimator. Answers are memoised per member set.
type ModelClient struct {
	baseURL       string
	scorePath     string
	rootCausePath string
	httpClient    *http.Client
	cache         cache.Provider
	cacheTTL      time.Duration
	logger        *slog.Logger
}

// ModelClientOptions configures a ModelClient.
type ModelClientOptions struct {
	BaseURL       string
	ScorePath     string
	RootCausePath string
	Timeout       time.Duration
	Cache         cache.Provider
	CacheTTL      time.Duration
	Logger        *slog.Logger
}

// NewModelClient constructs a client targeting the configured model service.
func NewModelClient(opts ModelClientOptions) *ModelClient {
	if opts.ScorePath == "" {
		opts.ScorePath = "/v1/score"
	}
	if opts.RootCausePath == "" {
		opts.RootCausePath = "/v1/root-cause"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ModelClient{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		scorePath:     opts.ScorePath,
		rootCausePath: opts.RootCausePath,
		httpClient:    &http.Client{Timeout: opts.Timeout},
		cache:         opts.Cache,
		cacheTTL:      opts.CacheTTL,
		logger:        opts.Logger,
	}
}

type modelRequest struct {
	Members []models.Event `json:"members"`
}

type scoreResponse struct {
	Confidence *float64 `json:"confidence"`
}

type rootCauseResponse struct {
	RootCause *models.RootCause `json:"root_cause"`
}

// Score returns the model's confidence for the member set.
func (c *ModelClient) Score(ctx context.Context, members []models.Event) (float64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	var response scoreResponse
	if err := c.call(ctx, "score", c.resolvePath(c.scorePath), members, &response); err != nil {
		return 0, fmt.Errorf("model score request failed: %w", err)
	}
	if response.Confidence == nil {
		return 0, errors.New("model score response missing confidence")
	}
	return *response.Confidence, nil
}

// Estimate returns the model's root-cause node for the member set.
func (c *ModelClient) Estimate(ctx context.Context, members []models.Event) (*models.RootCause, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var response rootCauseResponse
	if err := c.call(ctx, "rootcause", c.resolvePath(c.rootCausePath), members, &response); err != nil {
		return nil, fmt.Errorf("model root-cause request failed: %w", err)
	}
	if response.RootCause == nil || response.RootCause.NodeID == "" {
		return nil, errors.New("model root-cause response missing node")
	}
	if _, err := models.ParseDomain(string(response.RootCause.Domain)); err != nil {
		return nil, fmt.Errorf("model root-cause response: %w", err)
	}
	return response.RootCause, nil
}

func (c *ModelClient) ready() error {
	if c == nil {
		return utils.NewAppError(utils.KindUnavailable, "model", "model client not initialised", nil)
	}
	if c.baseURL == "" {
		return utils.NewAppError(utils.KindUnavailable, "model", "model base URL not configured", nil)
	}
	return nil
}

// call serves from cache when possible and stores successful answers.
func (c *ModelClient) call(ctx context.Context, kind, endpoint string, members []models.Event, out any) error {
	key := kind + ":" + Fingerprint(members)
	if cached, err := c.cache.Get(ctx, key); err == nil {
		if err := json.Unmarshal(cached, out); err == nil {
			return nil
		}
		_ = c.cache.Del(ctx, key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Debug("model cache lookup failed", slog.String("key", key), slog.Any("error", err))
	}

	raw, err := c.postJSON(ctx, endpoint, modelRequest{Members: members})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := c.cache.Set(ctx, key, raw, c.cacheTTL); err != nil {
		c.logger.Debug("model cache store failed", slog.String("key", key), slog.Any("error", err))
	}
	return nil
}

func (c *ModelClient) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *ModelClient) postJSON(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, utils.NewAppError(utils.KindUnavailable, "model", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, utils.NewAppError(utils.KindUnavailable, "model", "model returned "+resp.Status, nil)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return buf.Bytes(), nil
}

// Fingerprint identifies a member set independently of member order.
func Fingerprint(members []models.Event) string {
	parts := make([]string, 0, len(members))
	for _, m := range members {
		parts = append(parts, m.Key().String()+"|"+string(m.Domain)+"|"+string(m.Severity))
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}
