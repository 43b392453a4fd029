package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/pos_sync/models"
	"github.com/mmdatafocus/pos_sync/utils"
	"github.com/shopspring/decimal"
)

// TokenProvider hands the client the current access token. The session
// manager implements this; an empty token sends the request unauthenticated
// and lets the remote reject it (session failure is advisory, not blocking).
type TokenProvider interface {
	Token() string
}

// Client talks to the remote data service over HTTP. Timeouts rely on the
// underlying transport default below; no per-call deadline is enforced.
type Client struct {
	baseURL string
	tokens  TokenProvider
	http    *http.Client
}

func NewClient(tokens TokenProvider) (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("REMOTE_API_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("REMOTE_API_BASE_URL is not set")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if businessID, ok := utils.GetBusinessIdFromContext(ctx); ok {
		req.Header.Set("X-Business-Id", businessID)
	}
	if correlationID, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		req.Header.Set("X-Correlation-Id", correlationID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var parsed errorBody
		if json.Unmarshal(raw, &parsed) == nil && parsed.Message != "" {
			apiErr.Code = parsed.Code
			apiErr.Message = parsed.Message
		}
		return apiErr
	}

	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/health", nil, nil, nil)
}

func (c *Client) LookupSaleByReceipt(ctx context.Context, receiptID string) (*SaleRow, error) {
	var row SaleRow
	err := c.do(ctx, http.MethodGet, "/v1/sales/by-receipt/"+url.PathEscape(receiptID), nil, nil, &row)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

type insertSaleRequest struct {
	*models.OfflineSale
	SaleType string `json:"sale_type"`
}

func (c *Client) InsertSale(ctx context.Context, sale *models.OfflineSale, saleType string) (*SaleRow, error) {
	var row SaleRow
	err := c.do(ctx, http.MethodPost, "/v1/sales", nil, insertSaleRequest{OfflineSale: sale, SaleType: saleType}, &row)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

type stockLevel struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

func (c *Client) StockQuantities(ctx context.Context, productIDs []string) (map[string]decimal.Decimal, error) {
	params := url.Values{}
	params.Set("ids", strings.Join(productIDs, ","))
	var levels []stockLevel
	if err := c.do(ctx, http.MethodGet, "/v1/stock-levels", params, nil, &levels); err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(levels))
	for _, lv := range levels {
		out[lv.ProductID] = lv.Quantity
	}
	return out, nil
}

type decrementStockRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

func (c *Client) DecrementStock(ctx context.Context, productID string, qty decimal.Decimal) error {
	path := "/v1/stock-levels/" + url.PathEscape(productID) + "/decrement"
	return c.do(ctx, http.MethodPost, path, nil, decrementStockRequest{Quantity: qty}, nil)
}

func (c *Client) ListSales(ctx context.Context, since time.Time) ([]SaleRow, error) {
	params := url.Values{}
	params.Set("updated_since", since.UTC().Format(time.RFC3339))
	var rows []SaleRow
	if err := c.do(ctx, http.MethodGet, "/v1/sales", params, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) UpsertExpense(ctx context.Context, expense *models.Expense) error {
	// PUT by entity id is the server-side reconciliation key: repeated
	// drains of the same id converge instead of duplicating.
	return c.do(ctx, http.MethodPut, "/v1/expenses/"+url.PathEscape(expense.ID), nil, expense, nil)
}

func (c *Client) DeleteExpense(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/expenses/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) ListExpensesChangedSince(ctx context.Context, since time.Time) ([]models.Expense, error) {
	params := url.Values{}
	params.Set("updated_since", since.UTC().Format(time.RFC3339))
	var rows []models.Expense
	if err := c.do(ctx, http.MethodGet, "/v1/expenses", params, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) UpsertInventory(ctx context.Context, mutation *models.InventoryMutation) error {
	return c.do(ctx, http.MethodPut, "/v1/inventory/"+url.PathEscape(mutation.ProductID), nil, mutation, nil)
}

func (c *Client) DeleteInventory(ctx context.Context, productID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/inventory/"+url.PathEscape(productID), nil, nil, nil)
}

func (c *Client) UpsertBooking(ctx context.Context, booking *models.ServiceBooking) error {
	return c.do(ctx, http.MethodPut, "/v1/bookings/"+url.PathEscape(booking.ID), nil, booking, nil)
}

func (c *Client) DeleteBooking(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/bookings/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) ListBookingsChangedSince(ctx context.Context, since time.Time) ([]models.ServiceBooking, error) {
	params := url.Values{}
	params.Set("updated_since", since.UTC().Format(time.RFC3339))
	var rows []models.ServiceBooking
	if err := c.do(ctx, http.MethodGet, "/v1/bookings", params, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
