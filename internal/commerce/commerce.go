// Package commerce looks up orders on the store platform. One HTTP retry on
// rate limiting lives here; every other failure is surfaced to the caller as
// a routing signal.
package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"inboxagent/internal/domain"
)

const lookupTimeout = 30 * time.Second

var httpClient = &http.Client{Timeout: lookupTimeout}

var rateLimitPause = 2 * time.Second

// LookupResult carries the collaborator's answer. Success with a nil Order
// means the query matched more than one order and a human must disambiguate.
type LookupResult struct {
	Success          bool
	Order            *domain.OrderContext
	Reason           string
	Flags            []string
	EscalationNeeded bool
}

type Client struct {
	storeURL string
	token    string
}

func NewClient(storeURL, token string) *Client {
	return &Client{storeURL: strings.TrimRight(storeURL, "/"), token: token}
}

type orderWire struct {
	Name              string `json:"name"`
	FinancialStatus   string `json:"financial_status"`
	FulfillmentStatus string `json:"fulfillment_status"`
	CreatedAt         string `json:"created_at"`
	Fulfillments      []struct {
		TrackingNumber string `json:"tracking_number"`
		TrackingURL    string `json:"tracking_url"`
	} `json:"fulfillments"`
	LineItems []struct {
		Title    string `json:"title"`
		Quantity int    `json:"quantity"`
	} `json:"line_items"`
}

type ordersResponse struct {
	Orders []orderWire `json:"orders"`
}

// LookupOrder resolves an order by number and/or customer email. A 429
// response is retried once after a short pause; all other non-200 statuses
// fail without retry.
func (c *Client) LookupOrder(ctx context.Context, orderNumber, email string) (LookupResult, error) {
	if orderNumber == "" && email == "" {
		return LookupResult{Reason: "no order number or email to search by", EscalationNeeded: true}, nil
	}

	query := url.Values{"status": {"any"}}
	if orderNumber != "" {
		query.Set("name", normalizeOrderNumber(orderNumber))
	}
	if email != "" {
		query.Set("email", strings.ToLower(strings.TrimSpace(email)))
	}
	apiURL := fmt.Sprintf("%s/admin/api/2024-07/orders.json?%s", c.storeURL, query.Encode())

	body, status, err := c.get(ctx, apiURL)
	if status == http.StatusTooManyRequests {
		log.Printf("commerce rate limited, retrying once url=%s", c.storeURL)
		select {
		case <-time.After(rateLimitPause):
		case <-ctx.Done():
			return LookupResult{}, ctx.Err()
		}
		body, status, err = c.get(ctx, apiURL)
	}
	if err != nil {
		return LookupResult{}, err
	}
	if status != http.StatusOK {
		return LookupResult{}, fmt.Errorf("store API returned %d: %s", status, truncate(string(body), 200))
	}

	var parsed ordersResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return LookupResult{}, fmt.Errorf("parsing orders response: %w", err)
	}

	switch len(parsed.Orders) {
	case 0:
		return LookupResult{Reason: "no matching order found", EscalationNeeded: true}, nil
	case 1:
		return LookupResult{Success: true, Order: convertOrder(parsed.Orders[0])}, nil
	default:
		// Ambiguous match: report success with no order so the caller
		// escalates for disambiguation.
		return LookupResult{
			Success: true,
			Reason:  fmt.Sprintf("%d orders matched, needs disambiguation", len(parsed.Orders)),
			Flags:   []string{"ambiguous_match"},
		}, nil
	}
}

func (c *Client) get(ctx context.Context, apiURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func convertOrder(w orderWire) *domain.OrderContext {
	order := &domain.OrderContext{
		OrderNumber:       strings.TrimPrefix(w.Name, "#"),
		Status:            w.FinancialStatus,
		FulfillmentStatus: w.FulfillmentStatus,
		CreatedAt:         w.CreatedAt,
	}
	if len(w.Fulfillments) > 0 {
		order.TrackingNumber = w.Fulfillments[0].TrackingNumber
		order.TrackingURL = w.Fulfillments[0].TrackingURL
	}
	var items []string
	for _, li := range w.LineItems {
		items = append(items, fmt.Sprintf("%dx %s", li.Quantity, li.Title))
	}
	if len(items) > 0 {
		order.Summary = "Items: " + strings.Join(items, ", ")
	}
	return order
}

// normalizeOrderNumber makes "#1001" and "1001" query the same order.
func normalizeOrderNumber(n string) string {
	n = strings.TrimSpace(n)
	if !strings.HasPrefix(n, "#") {
		n = "#" + n
	}
	return n
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
