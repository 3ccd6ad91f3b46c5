package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoiceEventMessage_ToJSON(t *testing.T) {
	msg := &InvoiceEventMessage{
		PaymentHashHex: "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"[:64],
		State:          "accepted",
		AmountPaidSats: 100000,
	}

	data, err := msg.ToJSON()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	var result map[string]interface{}
	err = json.Unmarshal(data, &result)
	require.NoError(t, err)
	assert.Equal(t, msg.PaymentHashHex, result["payment_hash_hex"])
	assert.Equal(t, "accepted", result["state"])
	assert.Equal(t, float64(100000), result["amount_paid_sats"])
}

func TestFromJSONInvoiceEvent_Success(t *testing.T) {
	hash := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"[:64]
	jsonData := []byte(`{
		"payment_hash_hex": "` + hash + `",
		"state": "settled",
		"amount_paid_sats": 50000,
		"settled_at": 1700000000
	}`)

	msg, err := FromJSONInvoiceEvent(jsonData)
	require.NoError(t, err)
	assert.Equal(t, hash, msg.PaymentHashHex)
	assert.Equal(t, "settled", msg.State)
	assert.Equal(t, int64(50000), msg.AmountPaidSats)
	assert.Equal(t, int64(1700000000), msg.SettledAt)
}

func TestFromJSONInvoiceEvent_InvalidJSON(t *testing.T) {
	msg, err := FromJSONInvoiceEvent([]byte(`invalid json`))
	assert.Error(t, err)
	assert.Nil(t, msg)
	assert.Contains(t, err.Error(), "failed to unmarshal")
}

func TestFromJSONInvoiceEvent_ValidationErrors(t *testing.T) {
	validHash := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"[:64]

	tests := []struct {
		name        string
		jsonData    string
		expectError string
	}{
		{
			name:        "Missing payment_hash_hex",
			jsonData:    `{"state": "accepted", "amount_paid_sats": 1000}`,
			expectError: "payment_hash_hex is required",
		},
		{
			name:        "Invalid payment_hash_hex length",
			jsonData:    `{"payment_hash_hex": "abc123", "state": "accepted", "amount_paid_sats": 1000}`,
			expectError: "payment_hash_hex must be 64 characters",
		},
		{
			name:        "Invalid payment_hash_hex format",
			jsonData:    `{"payment_hash_hex": "` + "ZZ" + validHash[2:] + `", "state": "accepted", "amount_paid_sats": 1000}`,
			expectError: "payment_hash_hex must be valid hexadecimal",
		},
		{
			name:        "Invalid state",
			jsonData:    `{"payment_hash_hex": "` + validHash + `", "state": "bogus", "amount_paid_sats": 1000}`,
			expectError: "state must be one of accepted, settled, canceled",
		},
		{
			name:        "Negative amount",
			jsonData:    `{"payment_hash_hex": "` + validHash + `", "state": "accepted", "amount_paid_sats": -1}`,
			expectError: "amount_paid_sats must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := FromJSONInvoiceEvent([]byte(tt.jsonData))
			assert.Error(t, err)
			assert.Nil(t, msg)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestInvoiceEventMessage_RoundTrip(t *testing.T) {
	original := &InvoiceEventMessage{
		PaymentHashHex: "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"[:64],
		State:          "canceled",
		AmountPaidSats: 0,
	}

	data, err := original.ToJSON()
	require.NoError(t, err)

	msg, err := FromJSONInvoiceEvent(data)
	require.NoError(t, err)

	assert.Equal(t, original.PaymentHashHex, msg.PaymentHashHex)
	assert.Equal(t, original.State, msg.State)
	assert.Equal(t, original.AmountPaidSats, msg.AmountPaidSats)
}

func TestInvoiceEventMessage_Validate(t *testing.T) {
	validHash := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"[:64]

	tests := []struct {
		name        string
		msg         *InvoiceEventMessage
		expectError bool
		errorText   string
	}{
		{
			name: "Valid message",
			msg: &InvoiceEventMessage{
				PaymentHashHex: validHash,
				State:          "accepted",
				AmountPaidSats: 1000,
			},
			expectError: false,
		},
		{
			name: "Empty payment_hash_hex",
			msg: &InvoiceEventMessage{
				State:          "accepted",
				AmountPaidSats: 1000,
			},
			expectError: true,
			errorText:   "payment_hash_hex is required",
		},
		{
			name: "Invalid state",
			msg: &InvoiceEventMessage{
				PaymentHashHex: validHash,
				State:          "open",
				AmountPaidSats: 1000,
			},
			expectError: true,
			errorText:   "state must be one of accepted, settled, canceled",
		},
		{
			name: "Negative amount",
			msg: &InvoiceEventMessage{
				PaymentHashHex: validHash,
				State:          "settled",
				AmountPaidSats: -5,
			},
			expectError: true,
			errorText:   "amount_paid_sats must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorText)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
