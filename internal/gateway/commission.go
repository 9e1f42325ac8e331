package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/soukly/soukly-backend/internal/domain"
)

// CommissionClient resolves commission rates against the marketplace's
// commission service. The service owns the rule table; the payout engine only
// asks for the effective rate at the transaction date.
type CommissionClient struct {
	baseURL string
	client  *http.Client
}

// NewCommissionClient creates a new CommissionClient
func NewCommissionClient(baseURL string) *CommissionClient {
	return &CommissionClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type commissionResponse struct {
	Rate string `json:"rate"`
}

// Resolve fetches the commission rate for a sub-order's rule context
func (c *CommissionClient) Resolve(ctx context.Context, query domain.CommissionQuery) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("storeId", strconv.FormatInt(int64(query.StoreID), 10))
	params.Set("sellerTier", string(query.SellerTier))
	params.Set("transactionDate", query.TransactionDate.UTC().Format(time.RFC3339))
	if query.CategoryID != nil {
		params.Set("categoryId", strconv.FormatInt(int64(*query.CategoryID), 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/commission-rate?"+params.Encode(), nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("commission service unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return decimal.Zero, domain.ErrCommissionRuleNotFound
	default:
		return decimal.Zero, fmt.Errorf("commission service returned status %d", resp.StatusCode)
	}

	var body commissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("invalid commission response: %w", err)
	}
	rate, err := decimal.NewFromString(body.Rate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid commission rate %q: %w", body.Rate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("commission rate %s out of range", rate)
	}
	return rate, nil
}
