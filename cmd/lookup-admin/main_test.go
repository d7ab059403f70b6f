package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehicle-lookup-api/internal/payment"
)

func run(t *testing.T, v *viper.Viper, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(v)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCreate(t *testing.T) {
	v := viper.New()
	out, err := run(t, v, "--database-url", "memory://", "token", "create", "--credits", "5", "--legend", "trial")
	require.NoError(t, err)

	var tok map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &tok))
	assert.Equal(t, float64(5), tok["credits"])
	assert.Equal(t, "trial", tok["legend"])
	assert.Len(t, tok["token"], 36)
}

func TestTokenCreate_RejectsNegativeCredits(t *testing.T) {
	_, err := run(t, viper.New(), "--database-url", "memory://", "token", "create", "--credits", "-1")
	assert.Error(t, err)
}

func TestPaymentCreate_RequiresVehicle(t *testing.T) {
	_, err := run(t, viper.New(), "--database-url", "memory://", "payment", "create")
	assert.ErrorContains(t, err, "--reg-number")
}

func TestPaymentCreate(t *testing.T) {
	out, err := run(t, viper.New(), "--database-url", "memory://", "payment", "create",
		"--transaction-id", "P1", "--reg-number", "ABC-123")
	require.NoError(t, err)

	var p map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "P1", p["transactionId"])
	assert.Equal(t, "1", p["regType"])
	assert.Nil(t, p["used"])
}

func TestMissingStore(t *testing.T) {
	_, err := run(t, viper.New(), "migrate")
	assert.ErrorContains(t, err, "no store configured")
}

func TestPaymentRequest_IsSigned(t *testing.T) {
	v := viper.New()
	v.Set("PROVIDER_ACCOUNT", "375917")
	v.Set("PROVIDER_SECRET", "SAIPPUAKAUPPIAS")

	out, err := run(t, v, "payment-request", "--email", "buyer@example.com")
	require.NoError(t, err)

	var req struct {
		Headers map[string]string `json:"headers"`
		Body    payment.Body      `json:"body"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &req))
	assert.Equal(t, "375917", req.Headers[payment.HeaderAccount])
	assert.Len(t, req.Headers[payment.HeaderSignature], 64)
	assert.Equal(t, "buyer@example.com", req.Body.Customer.Email)
	assert.Len(t, req.Body.Stamp, 15)
}

func TestPaymentRequest_NeedsCredentials(t *testing.T) {
	_, err := run(t, viper.New(), "payment-request")
	assert.Error(t, err)
}
