package signer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(server.URL, slog.Default())
	return client, server
}

func TestTransfer_Success(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/transfer", r.URL.Path)

		var params TransferParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, "order-42", params.RequestID)
		assert.Equal(t, "solana", params.Chain)
		assert.Equal(t, "0.0393", params.Amount)

		require.NoError(t, json.NewEncoder(w).Encode(TransferResult{
			TxHash:   "5KtPn1LGuxhFqnXGKv9eWrPQk6xk8mFFBzMLh8oainWb",
			Status:   "CONFIRMED",
			Sequence: 341197053,
		}))
	})
	defer server.Close()

	result, err := client.Transfer(context.Background(), TransferParams{
		RequestID: "order-42",
		Chain:     "solana",
		Network:   "devnet",
		Token:     "SOL",
		From:      "fromAddr",
		To:        "toAddr",
		Amount:    "0.0393",
	})
	require.NoError(t, err)
	assert.Equal(t, "5KtPn1LGuxhFqnXGKv9eWrPQk6xk8mFFBzMLh8oainWb", result.TxHash)
	assert.Equal(t, "CONFIRMED", result.Status)
	assert.Equal(t, int64(341197053), result.Sequence)
}

func TestTransfer_StructuredError(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		require.NoError(t, json.NewEncoder(w).Encode(map[string]string{
			"code":    CodeInvalidAddress,
			"message": "recipient failed checksum",
		}))
	})
	defer server.Close()

	_, err := client.Transfer(context.Background(), TransferParams{RequestID: "r1"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, CodeInvalidAddress, apiErr.Code)
	assert.Contains(t, apiErr.Error(), "invalid_address")
}

func TestTransfer_RawErrorBody(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, err := w.Write([]byte("upstream node down"))
		require.NoError(t, err)
	})
	defer server.Close()

	_, err := client.Transfer(context.Background(), TransferParams{RequestID: "r1"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Empty(t, apiErr.Code)
	assert.Contains(t, apiErr.Message, "upstream node down")
}

func TestTransfer_MissingTxHash(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(TransferResult{Status: "SUBMITTED"}))
	})
	defer server.Close()

	_, err := client.Transfer(context.Background(), TransferParams{RequestID: "r1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tx hash")
}
