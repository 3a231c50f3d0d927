package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"food-order-service/config"
	"food-order-service/internal/models"

	"github.com/shopspring/decimal"
)

const (
	sslcommerzSandboxURL = "https://sandbox.sslcommerz.com"
	sslcommerzLiveURL    = "https://securepay.sslcommerz.com"
)

// SSLCommerzProvider talks to the SSLCommerz v4 hosted checkout. The order
// number is sent as tran_id; val_id is the gateway's transaction reference.
type SSLCommerzProvider struct {
	baseURL   string
	storeID   string
	storePass string
	currency  string
	client    *http.Client
}

func NewSSLCommerzProvider(cfg config.GatewayConfig) *SSLCommerzProvider {
	base := sslcommerzLiveURL
	if cfg.Sandbox {
		base = sslcommerzSandboxURL
	}
	return newSSLCommerzProvider(base, cfg)
}

func newSSLCommerzProvider(baseURL string, cfg config.GatewayConfig) *SSLCommerzProvider {
	timeout := cfg.ValidateTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SSLCommerzProvider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		storeID:   cfg.StoreID,
		storePass: cfg.StorePassword,
		currency:  cfg.Currency,
		client:    &http.Client{Timeout: timeout},
	}
}

func (p *SSLCommerzProvider) Name() string { return "sslcommerz" }

type sslInitResponse struct {
	Status         string `json:"status"`
	FailedReason   string `json:"failedreason"`
	SessionKey     string `json:"sessionkey"`
	GatewayPageURL string `json:"GatewayPageURL"`
}

func (p *SSLCommerzProvider) Initiate(ctx context.Context, req *InitRequest) (*Session, error) {
	form := url.Values{}
	form.Set("store_id", p.storeID)
	form.Set("store_passwd", p.storePass)
	form.Set("total_amount", req.Amount.StringFixed(2))
	form.Set("currency", p.currency)
	form.Set("tran_id", req.OrderNumber)
	form.Set("success_url", req.SuccessURL)
	form.Set("fail_url", req.FailURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("ipn_url", req.IPNURL)
	form.Set("cus_name", req.Customer.Name)
	form.Set("cus_email", req.Customer.Email)
	form.Set("cus_phone", req.Customer.Phone)
	form.Set("cus_add1", orDefault(req.Customer.Address, "N/A"))
	form.Set("cus_city", "Dhaka")
	form.Set("cus_country", "Bangladesh")
	form.Set("shipping_method", "NO")
	form.Set("product_name", "Food order "+req.OrderNumber)
	form.Set("product_category", "food")
	form.Set("product_profile", "general")
	form.Set("num_of_item", strconv.Itoa(req.ItemCount))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/gwprocess/v4/api.php", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out sslInitResponse
	if err := p.do(httpReq, &out); err != nil {
		return nil, err
	}
	if !strings.EqualFold(out.Status, "SUCCESS") || out.GatewayPageURL == "" {
		return nil, fmt.Errorf("sslcommerz init failed: %s", out.FailedReason)
	}
	return &Session{URL: out.GatewayPageURL, SessionID: out.SessionKey}, nil
}

// ParseCallback reads the form SSLCommerz posts to redirect and IPN endpoints.
func (p *SSLCommerzProvider) ParseCallback(r *http.Request) (*Callback, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid callback form: %w", err)
	}
	cb := &Callback{
		OrderNumber: r.Form.Get("tran_id"),
		Ref:         r.Form.Get("val_id"),
		Status:      r.Form.Get("status"),
	}
	if cb.OrderNumber == "" && cb.Ref == "" {
		return nil, fmt.Errorf("callback carries neither tran_id nor val_id")
	}
	return cb, nil
}

type sslValidation struct {
	Status      string `json:"status"`
	TranID      string `json:"tran_id"`
	ValID       string `json:"val_id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	BankTranID  string `json:"bank_tran_id"`
	CardType    string `json:"card_type"`
	TranDate    string `json:"tran_date"`
	StoreAmount string `json:"store_amount"`
	RiskLevel   string `json:"risk_level"`
}

type sslTransactionQuery struct {
	APIConnect string          `json:"APIConnect"`
	Element    []sslValidation `json:"element"`
}

// Validate uses the validator API when a val_id is known and the
// transaction query API by tran_id otherwise (fail and cancel redirects).
func (p *SSLCommerzProvider) Validate(ctx context.Context, cb *Callback) (*Validation, error) {
	if cb.Ref != "" {
		return p.validateByValID(ctx, cb.Ref)
	}
	return p.queryByTranID(ctx, cb.OrderNumber)
}

func (p *SSLCommerzProvider) validateByValID(ctx context.Context, valID string) (*Validation, error) {
	q := url.Values{}
	q.Set("val_id", valID)
	q.Set("store_id", p.storeID)
	q.Set("store_passwd", p.storePass)
	q.Set("format", "json")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+"/validator/api/validationserverAPI.php?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var out sslValidation
	if err := p.do(httpReq, &out); err != nil {
		return nil, err
	}
	// A forged or mistyped val_id answers INVALID_TRANSACTION with no tran_id.
	if strings.EqualFold(out.Status, "INVALID_TRANSACTION") || out.TranID == "" {
		return nil, fmt.Errorf("sslcommerz val_id %s: %w", valID, ErrUnknownTransaction)
	}
	return out.toValidation(valID)
}

func (p *SSLCommerzProvider) queryByTranID(ctx context.Context, tranID string) (*Validation, error) {
	q := url.Values{}
	q.Set("tran_id", tranID)
	q.Set("store_id", p.storeID)
	q.Set("store_passwd", p.storePass)
	q.Set("format", "json")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+"/validator/api/merchantTransIDvalidationAPI.php?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var out sslTransactionQuery
	if err := p.do(httpReq, &out); err != nil {
		return nil, err
	}
	if out.APIConnect != "DONE" {
		return nil, fmt.Errorf("sslcommerz transaction query failed: %s", out.APIConnect)
	}
	if len(out.Element) == 0 {
		return nil, fmt.Errorf("sslcommerz tran_id %s: %w", tranID, ErrUnknownTransaction)
	}
	// A paid attempt wins over earlier failed ones for the same tran_id.
	for _, el := range out.Element {
		if sslOutcome(el.Status) == OutcomePaid {
			return el.toValidation(el.ValID)
		}
	}
	return out.Element[0].toValidation(out.Element[0].ValID)
}

// toValidation fails on an unreadable amount for a paid transaction.
func (v sslValidation) toValidation(valID string) (*Validation, error) {
	outcome := sslOutcome(v.Status)
	amount, err := decimal.NewFromString(v.Amount)
	if err != nil && outcome == OutcomePaid {
		return nil, fmt.Errorf("sslcommerz amount %q for %s: %w", v.Amount, v.TranID, err)
	}
	return &Validation{
		OrderNumber:   v.TranID,
		TransactionID: valID,
		Outcome:       outcome,
		Amount:        amount,
		Currency:      v.Currency,
		Metadata: models.Metadata{
			"provider":     "sslcommerz",
			"val_id":       valID,
			"bank_tran_id": v.BankTranID,
			"card_type":    v.CardType,
			"tran_date":    v.TranDate,
			"store_amount": v.StoreAmount,
			"risk_level":   v.RiskLevel,
			"status":       v.Status,
		},
	}, nil
}

func sslOutcome(status string) Outcome {
	switch strings.ToUpper(status) {
	case "VALID", "VALIDATED":
		return OutcomePaid
	case "FAILED", "UNATTEMPTED", "EXPIRED":
		return OutcomeFailed
	case "CANCELLED":
		return OutcomeCancelled
	default:
		return OutcomePending
	}
}

func (p *SSLCommerzProvider) do(req *http.Request, out any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sslcommerz request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sslcommerz returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode sslcommerz response: %w", err)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
