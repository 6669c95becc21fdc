// Package smartkasa is a client for the SmartKasa POS API.
package smartkasa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Swed0ua/Integration-SK-Surve/internal/domain"
	apperrors "github.com/Swed0ua/Integration-SK-Surve/pkg/errors"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/httpclient"
)

const serviceName = "smartkasa"

// maxPages stops pagination if the API keeps returning a next page.
const maxPages = 10000

// Config holds SmartKasa credentials and endpoint.
type Config struct {
	BaseURL  string
	APIKey   string
	Phone    string
	Password string
}

// Client talks to the SmartKasa REST API.
type Client struct {
	cfg    Config
	http   httpclient.Doer
	logger *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a SmartKasa client on top of doer.
func NewClient(cfg Config, doer httpclient.Doer, logger *slog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		http:   doer,
		logger: logger,
	}
}

type sessionRequest struct {
	Session struct {
		PhoneNumber string `json:"phone_number"`
		Password    string `json:"password"`
	} `json:"session"`
}

type sessionResponse struct {
	Data struct {
		Access string `json:"access"`
	} `json:"data"`
}

// Authenticate opens a session and stores the access token for later calls.
func (c *Client) Authenticate(ctx context.Context) error {
	var body sessionRequest
	body.Session.PhoneNumber = c.cfg.Phone
	body.Session.Password = c.cfg.Password

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/auth/sessions", nil, body, false)
	if err != nil {
		return err
	}

	var resp sessionResponse
	if _, err := httpclient.DoJSON(ctx, c.http, req, &resp, serviceName); err != nil {
		return fmt.Errorf("smartkasa authenticate: %w", err)
	}
	if resp.Data.Access == "" {
		return fmt.Errorf("smartkasa authenticate: %w", apperrors.Unauthorized("smartkasa: no access token in session response"))
	}

	c.mu.Lock()
	c.token = resp.Data.Access
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "smartkasa session opened")
	return nil
}

type receiptsPage struct {
	Data []json.RawMessage `json:"data"`
	Meta struct {
		NextPage *int `json:"next_page"`
	} `json:"meta"`
}

// ListReceipts fetches every receipt page for the given date bounds. Nil bounds
// are omitted from the query. Entries that do not decode are logged and
// skipped; their count is returned alongside the receipts.
func (c *Client) ListReceipts(ctx context.Context, from, to *time.Time) ([]domain.SourceReceipt, int, error) {
	query := url.Values{}
	if from != nil {
		query.Set("date_start", from.UTC().Format(time.DateOnly))
	}
	if to != nil {
		query.Set("date_end", to.UTC().Format(time.DateOnly))
	}

	var (
		receipts []domain.SourceReceipt
		skipped  int
	)
	page := 1
	for fetched := 0; ; fetched++ {
		if fetched >= maxPages {
			return nil, 0, fmt.Errorf("smartkasa list receipts: stopped after %d pages", maxPages)
		}

		query.Set("page", strconv.Itoa(page))
		req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/pos/receipts", query, nil, true)
		if err != nil {
			return nil, 0, err
		}

		var resp receiptsPage
		if _, err := httpclient.DoJSON(ctx, c.http, req, &resp, serviceName); err != nil {
			return nil, 0, fmt.Errorf("smartkasa list receipts page %d: %w", page, err)
		}

		for i, raw := range resp.Data {
			var r domain.SourceReceipt
			if err := json.Unmarshal(raw, &r); err != nil {
				c.logger.WarnContext(ctx, "smartkasa receipt not decodable, skipping",
					slog.Int("page", page),
					slog.Int("index", i),
					slog.String("error", err.Error()),
				)
				skipped++
				continue
			}
			receipts = append(receipts, r)
		}

		c.logger.DebugContext(ctx, "smartkasa receipts page fetched",
			slog.Int("page", page),
			slog.Int("count", len(resp.Data)),
		)

		next := resp.Meta.NextPage
		if next == nil || *next <= page {
			break
		}
		page = *next
	}

	return receipts, skipped, nil
}

type productResponse struct {
	Data *domain.SourceProduct `json:"data"`
}

// GetProduct fetches a single product. A 404 is reported as not found
// rather than as an error.
func (c *Client) GetProduct(ctx context.Context, id domain.ExternalID) (domain.SourceProduct, bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/inventory/products/"+url.PathEscape(id.String()), nil, nil, true)
	if err != nil {
		return domain.SourceProduct{}, false, err
	}

	var resp productResponse
	if _, err := httpclient.DoJSON(ctx, c.http, req, &resp, serviceName); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.SourceProduct{}, false, nil
		}
		return domain.SourceProduct{}, false, fmt.Errorf("smartkasa get product %s: %w", id, err)
	}
	if resp.Data == nil {
		return domain.SourceProduct{}, false, nil
	}
	return *resp.Data, true, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any, auth bool) (*http.Request, error) {
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := httpclient.NewJSONRequest(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.cfg.APIKey)

	if auth {
		c.mu.RLock()
		token := c.token
		c.mu.RUnlock()
		if token == "" {
			return nil, apperrors.Unauthorized("smartkasa: not authenticated")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}
