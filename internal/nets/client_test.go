package nets

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/hawker-checkout/internal/domain/payment"
)

type capturedRequest struct {
	path    string
	apiKey  string
	project string
	fields  map[string]string
}

func newGatewayServer(t *testing.T, status int, body string) (*httptest.Server, chan capturedRequest) {
	t.Helper()
	reqs := make(chan capturedRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		fields := map[string]string{}
		require.NoError(t, jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
			raw, err := d.Raw()
			if err != nil {
				return err
			}
			fields[key] = raw.String()
			return nil
		}))
		reqs <- capturedRequest{
			path:    r.URL.Path,
			apiKey:  r.Header.Get("api-key"),
			project: r.Header.Get("project-id"),
			fields:  fields,
		}

		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		RequestPath:  "/api/v1/common/payments/nets-qr/request",
		QueryPath:    "/api/v1/common/payments/nets-qr/query",
		APIKey:       "key",
		ProjectID:    "proj",
		NotifyMobile: 88286909,
		Timeout:      time.Second,
	}
}

func TestRequest(t *testing.T) {
	srv, reqs := newGatewayServer(t, http.StatusOK, `{
		"result": {"data": {
			"response_code": "00",
			"txn_status": 1,
			"qr_code": "iVBORw0KGgo=",
			"txn_retrieval_ref": "ref-123",
			"network_status": 0,
			"instruction": "",
			"txn_identifier": "ignored"
		}}
	}`)
	c := New(testConfig(srv.URL))

	p, err := c.Request(context.Background(), payment.QRRequest{TxnID: "txn-1", AmountCents: 1002})
	require.NoError(t, err)
	assert.True(t, p.Success())
	assert.Equal(t, "ref-123", p.RetrievalRef)
	assert.Equal(t, "iVBORw0KGgo=", p.QRCode)

	got := <-reqs
	assert.Equal(t, "/api/v1/common/payments/nets-qr/request", got.path)
	assert.Equal(t, "key", got.apiKey)
	assert.Equal(t, "proj", got.project)
	assert.Equal(t, `"txn-1"`, got.fields["txn_id"])
	assert.Equal(t, `"10.02"`, got.fields["amt_in_dollars"])
	assert.Equal(t, `88286909`, got.fields["notify_mobile"])
}

func TestQuery(t *testing.T) {
	srv, reqs := newGatewayServer(t, http.StatusOK, `{"result":{"data":{"response_code":"00","txn_status":"1","txn_retrieval_ref":"ref-123"}}}`)
	c := New(testConfig(srv.URL))

	p, err := c.Query(context.Background(), "ref-123", true)
	require.NoError(t, err)
	assert.True(t, p.Success())

	got := <-reqs
	assert.Equal(t, "/api/v1/common/payments/nets-qr/query", got.path)
	assert.Equal(t, `"ref-123"`, got.fields["txn_retrieval_ref"])
	assert.Equal(t, `1`, got.fields["frontend_timeout_status"])
}

func TestGatewayErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("non 2xx", func(t *testing.T) {
		srv, _ := newGatewayServer(t, http.StatusBadGateway, `upstream down`)
		_, err := New(testConfig(srv.URL)).Query(ctx, "ref", false)

		var extErr *payment.ExternalServiceError
		require.ErrorAs(t, err, &extErr)
		assert.Equal(t, http.StatusBadGateway, extErr.StatusCode)
		assert.Equal(t, "query", extErr.Op)
	})

	t.Run("missing credentials", func(t *testing.T) {
		cfg := testConfig("http://127.0.0.1:0")
		cfg.APIKey = ""
		_, err := New(cfg).Request(ctx, payment.QRRequest{TxnID: "t", AmountCents: 100})
		require.ErrorIs(t, err, payment.ErrNotConfigured)
	})

	t.Run("non positive amount", func(t *testing.T) {
		_, err := New(testConfig("http://127.0.0.1:0")).Request(ctx, payment.QRRequest{TxnID: "t"})
		require.ErrorIs(t, err, payment.ErrInvalidAmount)

		var extErr *payment.ExternalServiceError
		require.ErrorAs(t, err, &extErr)
	})

	t.Run("malformed body", func(t *testing.T) {
		srv, _ := newGatewayServer(t, http.StatusOK, `{"result":{}}`)
		_, err := New(testConfig(srv.URL)).Query(ctx, "ref", false)

		var extErr *payment.ExternalServiceError
		require.ErrorAs(t, err, &extErr)
		assert.ErrorContains(t, err, "missing result.data")
	})
}

func TestFormatDollars(t *testing.T) {
	for cents, want := range map[int64]string{
		1:      "0.01",
		10:     "0.10",
		1002:   "10.02",
		120000: "1200.00",
	} {
		assert.Equal(t, want, FormatDollars(cents))
	}
}
