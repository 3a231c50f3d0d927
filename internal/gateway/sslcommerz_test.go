package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"food-order-service/config"
	"food-order-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{StoreID: "store1", StorePassword: "pass1", Currency: "BDT"}
}

func TestSSLCommerzInitiate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gwprocess/v4/api.php", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "store1", r.Form.Get("store_id"))
		assert.Equal(t, "ORD-1", r.Form.Get("tran_id"))
		assert.Equal(t, "460.00", r.Form.Get("total_amount"))
		assert.Equal(t, "https://api/ipn", r.Form.Get("ipn_url"))
		w.Write([]byte(`{"status":"SUCCESS","sessionkey":"SK1","GatewayPageURL":"https://pay/SK1"}`))
	}))
	defer srv.Close()

	p := newSSLCommerzProvider(srv.URL, testGatewayConfig())
	s, err := p.Initiate(context.Background(), &InitRequest{
		OrderNumber: "ORD-1",
		Amount:      decimal.NewFromInt(460),
		Customer:    models.Customer{Name: "Rina"},
		IPNURL:      "https://api/ipn",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay/SK1", s.URL)
	assert.Equal(t, "SK1", s.SessionID)
}

func TestSSLCommerzInitiateFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"FAILED","failedreason":"Store Credential Error"}`))
	}))
	defer srv.Close()

	_, err := newSSLCommerzProvider(srv.URL, testGatewayConfig()).
		Initiate(context.Background(), &InitRequest{OrderNumber: "ORD-1", Amount: decimal.NewFromInt(1)})
	assert.ErrorContains(t, err, "Store Credential Error")
}

func TestSSLCommerzValidateByValID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/validator/api/validationserverAPI.php", r.URL.Path)
		assert.Equal(t, "VAL1", r.URL.Query().Get("val_id"))
		assert.Equal(t, "pass1", r.URL.Query().Get("store_passwd"))
		w.Write([]byte(`{"status":"VALID","tran_id":"ORD-1","val_id":"VAL1","amount":"460.00","currency":"BDT","bank_tran_id":"B1"}`))
	}))
	defer srv.Close()

	v, err := newSSLCommerzProvider(srv.URL, testGatewayConfig()).
		Validate(context.Background(), &Callback{OrderNumber: "ORD-spoofed", Ref: "VAL1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, v.Outcome)
	assert.Equal(t, "ORD-1", v.OrderNumber, "order number comes from the gateway, not the callback")
	assert.Equal(t, "VAL1", v.TransactionID)
	assert.True(t, v.Amount.Equal(decimal.NewFromInt(460)))
	assert.Equal(t, "B1", v.Metadata["bank_tran_id"])
}

func TestSSLCommerzValidateByTranID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/validator/api/merchantTransIDvalidationAPI.php", r.URL.Path)
		assert.Equal(t, "ORD-1", r.URL.Query().Get("tran_id"))
		w.Write([]byte(`{"APIConnect":"DONE","element":[
			{"status":"FAILED","tran_id":"ORD-1","val_id":""},
			{"status":"VALID","tran_id":"ORD-1","val_id":"VAL9","amount":"460.00"}]}`))
	}))
	defer srv.Close()

	v, err := newSSLCommerzProvider(srv.URL, testGatewayConfig()).
		Validate(context.Background(), &Callback{OrderNumber: "ORD-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, v.Outcome, "a paid attempt wins over a failed redirect")
	assert.Equal(t, "VAL9", v.TransactionID)
}

func TestSSLCommerzValidateErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newSSLCommerzProvider(srv.URL, testGatewayConfig()).
		Validate(context.Background(), &Callback{Ref: "VAL1"})
	assert.Error(t, err)
}

func TestSSLCommerzParseCallback(t *testing.T) {
	p := newSSLCommerzProvider("http://unused", testGatewayConfig())

	form := url.Values{"tran_id": {"ORD-1"}, "val_id": {"VAL1"}, "status": {"VALID"}}
	r := httptest.NewRequest(http.MethodPost, "/payments/gateway/success", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	cb, err := p.ParseCallback(r)
	require.NoError(t, err)
	assert.Equal(t, &Callback{OrderNumber: "ORD-1", Ref: "VAL1", Status: "VALID"}, cb)

	empty := httptest.NewRequest(http.MethodPost, "/payments/gateway/fail", nil)
	_, err = p.ParseCallback(empty)
	assert.Error(t, err)
}

func TestSSLOutcome(t *testing.T) {
	assert.Equal(t, OutcomePaid, sslOutcome("VALIDATED"))
	assert.Equal(t, OutcomeFailed, sslOutcome("FAILED"))
	assert.Equal(t, OutcomePending, sslOutcome("INVALID_TRANSACTION"))
	assert.Equal(t, OutcomeCancelled, sslOutcome("CANCELLED"))
	assert.Equal(t, OutcomePending, sslOutcome("PENDING"))
}

func TestSSLCommerzUnknownReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/validator/api/validationserverAPI.php":
			w.Write([]byte(`{"status":"INVALID_TRANSACTION"}`))
		default:
			w.Write([]byte(`{"APIConnect":"DONE","no_of_trans_found":0,"element":[]}`))
		}
	}))
	defer srv.Close()
	p := newSSLCommerzProvider(srv.URL, testGatewayConfig())

	v, err := p.Validate(context.Background(), &Callback{OrderNumber: "ORD-VICTIM", Ref: "bogus"})
	assert.Nil(t, v)
	assert.True(t, errors.Is(err, ErrUnknownTransaction), "got %v", err)

	v, err = p.Validate(context.Background(), &Callback{OrderNumber: "ORD-NOPE"})
	assert.Nil(t, v)
	assert.True(t, errors.Is(err, ErrUnknownTransaction), "got %v", err)
}

func TestSSLCommerzPaidWithUnreadableAmountFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"VALID","tran_id":"ORD-1","val_id":"VAL1","amount":"4,60.00"}`))
	}))
	defer srv.Close()

	v, err := newSSLCommerzProvider(srv.URL, testGatewayConfig()).
		Validate(context.Background(), &Callback{Ref: "VAL1"})
	assert.Nil(t, v)
	assert.ErrorContains(t, err, "amount")
}
