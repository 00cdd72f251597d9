package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/flss-ops/api/internal/domain"
)

const (
	defaultAPIVersion  = "2024-01"
	defaultMaxAttempts = 3
	defaultRetryDelay  = 500 * time.Millisecond
	maxResponseBytes   = 4 << 20

	tokenHeader = "X-Shopify-Access-Token"

	metafieldNamespace  = "flss"
	metafieldKeyTier    = "tier"
	metafieldKeyPricing = "price_tiers"
)

// ErrNotFound is returned when the platform reports a missing resource.
var ErrNotFound = errors.New("commerce: resource not found")

// StatusError reports a non-2xx response that is not a plain not-found.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("commerce: upstream status %d: %s", e.Status, e.Body)
}

// Client talks to the commerce platform's admin REST API. It owns token
// auth, bounded 429/5xx retries, and payload mapping; callers see domain
// types and typed errors only.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	logger      *zap.Logger
	maxAttempts int
	sleep       func(context.Context, time.Duration) error
}

// ClientDeps configures a Client.
type ClientDeps struct {
	// ShopDomain is the myshopify host, e.g. "flss-studio.myshopify.com".
	ShopDomain string
	// BaseURL overrides the derived admin URL; used by tests.
	BaseURL     string
	APIVersion  string
	AccessToken string
	HTTPClient  *http.Client
	Logger      *zap.Logger
	MaxAttempts int
}

// NewClient constructs a Client for the configured shop.
func NewClient(deps ClientDeps) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(deps.BaseURL), "/")
	if base == "" {
		shop := strings.TrimSpace(deps.ShopDomain)
		if shop == "" {
			return nil, errors.New("commerce client: shop domain is required")
		}
		version := strings.TrimSpace(deps.APIVersion)
		if version == "" {
			version = defaultAPIVersion
		}
		base = fmt.Sprintf("https://%s/admin/api/%s", shop, version)
	}
	if strings.TrimSpace(deps.AccessToken) == "" {
		return nil, errors.New("commerce client: access token is required")
	}

	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	return &Client{
		baseURL:     base,
		token:       strings.TrimSpace(deps.AccessToken),
		httpClient:  httpClient,
		logger:      logger,
		maxAttempts: attempts,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}, nil
}

// FetchDraftOrder loads a draft order by id.
func (c *Client) FetchDraftOrder(ctx context.Context, draftOrderID int64) (domain.DraftOrder, error) {
	var envelope draftOrderEnvelope
	path := fmt.Sprintf("/draft_orders/%d.json", draftOrderID)
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return domain.DraftOrder{}, err
	}
	return decodeDraftOrder(envelope.DraftOrder), nil
}

// UpdateDraftOrderLines replaces the draft order's line items and note
// attributes in a single write and returns the post-update state.
func (c *Client) UpdateDraftOrderLines(ctx context.Context, draftOrderID int64, lines []domain.DraftOrderLine, noteAttributes []domain.NoteAttribute) (domain.DraftOrder, error) {
	items := make([]lineItemPayload, 0, len(lines))
	for _, line := range lines {
		items = append(items, encodeLineItem(line))
	}
	body := draftOrderEnvelope{DraftOrder: draftOrderPayload{
		ID:             draftOrderID,
		LineItems:      items,
		NoteAttributes: encodeNoteAttributes(noteAttributes),
	}}

	var envelope draftOrderEnvelope
	path := fmt.Sprintf("/draft_orders/%d.json", draftOrderID)
	if err := c.do(ctx, http.MethodPut, path, body, &envelope); err != nil {
		return domain.DraftOrder{}, err
	}
	return decodeDraftOrder(envelope.DraftOrder), nil
}

// CreateDraftOrder creates a draft order upstream and returns it with the
// platform-assigned identifiers.
func (c *Client) CreateDraftOrder(ctx context.Context, draft domain.DraftOrder) (domain.DraftOrder, error) {
	items := make([]lineItemPayload, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		items = append(items, encodeLineItem(line))
	}
	payload := draftOrderPayload{
		Currency:       draft.Currency,
		Note:           draft.Note,
		LineItems:      items,
		NoteAttributes: encodeNoteAttributes(draft.NoteAttributes),
	}
	if draft.CustomerID != 0 {
		payload.Customer = &customerRefPayload{ID: draft.CustomerID}
	}

	var envelope draftOrderEnvelope
	if err := c.do(ctx, http.MethodPost, "/draft_orders.json", draftOrderEnvelope{DraftOrder: payload}, &envelope); err != nil {
		return domain.DraftOrder{}, err
	}
	return decodeDraftOrder(envelope.DraftOrder), nil
}

// FetchCustomerTierProfile loads the customer's tags and tier metafield.
func (c *Client) FetchCustomerTierProfile(ctx context.Context, customerID int64) (domain.CustomerTierProfile, error) {
	var customer customerEnvelope
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/customers/%d.json", customerID), nil, &customer); err != nil {
		return domain.CustomerTierProfile{}, err
	}

	profile := domain.CustomerTierProfile{
		CustomerID: customer.Customer.ID,
		Tags:       splitTags(customer.Customer.Tags),
	}

	var metafields metafieldsEnvelope
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/customers/%d/metafields.json", customerID), nil, &metafields)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return domain.CustomerTierProfile{}, err
	}
	for _, field := range metafields.Metafields {
		if field.Namespace == metafieldNamespace && field.Key == metafieldKeyTier {
			profile.Tier = strings.TrimSpace(field.stringValue())
			break
		}
	}
	return profile, nil
}

// FetchVariantPriceTiers loads a variant's legacy flat tier map metafield.
// A variant without one yields an empty tier map, not an error.
func (c *Client) FetchVariantPriceTiers(ctx context.Context, variantID int64) (domain.VariantPriceTiers, error) {
	var metafields metafieldsEnvelope
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/variants/%d/metafields.json", variantID), nil, &metafields)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.VariantPriceTiers{VariantID: variantID}, nil
		}
		return domain.VariantPriceTiers{}, err
	}
	tiers := domain.VariantPriceTiers{VariantID: variantID}
	for _, field := range metafields.Metafields {
		if field.Namespace == metafieldNamespace && field.Key == metafieldKeyPricing {
			tiers.Tiers = parseTierMap(field.stringValue())
			break
		}
	}
	return tiers, nil
}

func (c *Client) do(ctx context.Context, method string, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("commerce: encode request: %w", err)
		}
		payload = encoded
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("commerce: build request: %w", err)
		}
		req.Header.Set(tokenHeader, c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("commerce: %s %s: %w", method, path, err)
		}

		retry, err := c.handleResponse(resp, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == c.maxAttempts {
			return err
		}

		delay := retryDelay(resp)
		c.logger.Warn("commerce request throttled, retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// handleResponse decodes the body or classifies the failure; the bool
// reports whether the request may be retried.
func (c *Client) handleResponse(resp *http.Response, out any) (bool, error) {
	defer resp.Body.Close()
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if readErr != nil {
		return false, fmt.Errorf("commerce: read response: %w", readErr)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, &StatusError{Status: resp.StatusCode, Body: truncate(string(body), 256)}
	case resp.StatusCode >= 500:
		return true, &StatusError{Status: resp.StatusCode, Body: truncate(string(body), 256)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return false, &StatusError{Status: resp.StatusCode, Body: truncate(string(body), 256)}
	}

	if out == nil {
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("commerce: decode response: %w", err)
	}
	return false, nil
}

func retryDelay(resp *http.Response) time.Duration {
	if resp == nil {
		return defaultRetryDelay
	}
	if after := strings.TrimSpace(resp.Header.Get("Retry-After")); after != "" {
		if seconds, err := strconv.ParseFloat(after, 64); err == nil && seconds > 0 {
			return time.Duration(seconds * float64(time.Second))
		}
	}
	return defaultRetryDelay
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
