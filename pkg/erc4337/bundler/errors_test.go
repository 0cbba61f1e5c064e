package bundler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyKnownSignatures(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    FailureKind
	}{
		{"sender already constructed", "AA10 sender already constructed", KindSenderAlreadyDeployed},
		{"init code reverted", "UserOperation reverted during simulation with reason: AA13 initCode failed or OOG", KindInitCodeReverted},
		{"init code did not create sender", "AA15 initCode must create sender", KindInitCodeReverted},
		{"sender address mismatch", "AA14 initCode must return sender", KindSenderAddressMismatch},
		{"sender not deployed", "AA20 account not deployed", KindSenderNotDeployed},
		{"insufficient prefund", "AA21 didn't pay prefund", KindInsufficientFunds},
		{"expired", "AA22 expired or not due", KindExpiredOrNotDue},
		{"account validation reverted", "AA23 reverted (or OOG)", KindAccountValidationReverted},
		{"account signature", "AA24 signature error", KindInvalidAccountSignature},
		{"invalid nonce", "AA25 invalid account nonce", KindInvalidAccountNonce},
		{"paymaster not deployed", "AA30 paymaster not deployed", KindPaymasterNotDeployed},
		{"paymaster deposit too low", "AA31 paymaster deposit too low", KindPaymasterDepositTooLow},
		{"paymaster expired", "AA32 paymaster expired or not due", KindExpiredOrNotDue},
		{"paymaster validation reverted", "AA33 reverted (or OOG)", KindPaymasterValidationReverted},
		{"paymaster signature", "AA34 signature error", KindInvalidPaymasterSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := &RawBundlerError{Code: -32500, Message: tt.message}
			classified := Classify(raw)

			assert.Equal(t, tt.want, classified.Kind)
			// the original payload must remain reachable as the cause
			assert.Same(t, raw, classified.Raw)
			assert.Equal(t, raw, errors.Unwrap(classified))
		})
	}
}

func TestClassifyFallback(t *testing.T) {
	raw := &RawBundlerError{Code: -32603, Message: "internal server error"}
	classified := Classify(raw)

	assert.Equal(t, KindUnknown, classified.Kind)
	assert.True(t, errors.Is(classified, ErrEstimateUserOperationGas))
	assert.Same(t, raw, classified.Raw, "fallback must preserve the payload verbatim")
}

func TestClassifyIsDeterministic(t *testing.T) {
	raw := &RawBundlerError{Code: -32500, Message: "AA25 invalid account nonce"}

	first := Classify(raw)
	second := Classify(raw)

	assert.Equal(t, first.Kind, second.Kind)
	assert.True(t, errors.Is(first, second))
}

func TestClassifyOrderSensitivity(t *testing.T) {
	// A bundler that re-simulates init code can report both the address
	// mismatch and the generic init-code failure in one revert string. The
	// specific signature must win.
	raw := &RawBundlerError{
		Code:    -32500,
		Message: "AA14 initCode must return sender; AA13 initCode failed or OOG",
	}

	classified := Classify(raw)
	assert.Equal(t, KindSenderAddressMismatch, classified.Kind)
}

func TestClassifyMatchesRevertDataField(t *testing.T) {
	raw := &RawBundlerError{
		Code:    -32500,
		Message: "UserOperation failed validation",
		Data:    "AA31 paymaster deposit too low",
	}

	classified := Classify(raw)
	assert.Equal(t, KindPaymasterDepositTooLow, classified.Kind)
}

func TestClassifyNilPayload(t *testing.T) {
	classified := Classify(nil)
	assert.Equal(t, KindMalformedPayload, classified.Kind)
	assert.Nil(t, errors.Unwrap(classified))
}

func TestClassifySentinels(t *testing.T) {
	err := Classify(&RawBundlerError{Code: -32500, Message: "AA10 sender already constructed"})

	assert.True(t, errors.Is(err, ErrSenderAlreadyDeployed))
	assert.False(t, errors.Is(err, ErrInvalidAccountNonce))

	var classified *UserOperationError
	require.True(t, errors.As(error(err), &classified))
	assert.Equal(t, KindSenderAlreadyDeployed, classified.Kind)
}

type fakeRPCError struct {
	code int
	msg  string
	data any
}

func (e *fakeRPCError) Error() string  { return e.msg }
func (e *fakeRPCError) ErrorCode() int { return e.code }
func (e *fakeRPCError) ErrorData() any { return e.data }

func TestClassifyError(t *testing.T) {
	t.Run("rpc error with AA reason", func(t *testing.T) {
		err := ClassifyError(&fakeRPCError{code: -32500, msg: "AA21 didn't pay prefund"})
		assert.True(t, errors.Is(err, ErrInsufficientFunds))
	})

	t.Run("rpc error with reason in data", func(t *testing.T) {
		err := ClassifyError(&fakeRPCError{code: -32500, msg: "execution reverted", data: "AA30 paymaster not deployed"})
		assert.True(t, errors.Is(err, ErrPaymasterNotDeployed))
	})

	t.Run("non-rpc errors pass through", func(t *testing.T) {
		plain := errors.New("connection refused")
		assert.Equal(t, plain, ClassifyError(plain))
	})

	t.Run("already classified errors are not re-wrapped", func(t *testing.T) {
		classified := Classify(&RawBundlerError{Code: -32500, Message: "AA25 invalid account nonce"})
		assert.Equal(t, error(classified), ClassifyError(classified))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, ClassifyError(nil))
	})
}

func TestDecodeRawError(t *testing.T) {
	t.Run("json map payload", func(t *testing.T) {
		payload := map[string]any{
			"code":    float64(-32500), // json numbers decode as float64
			"message": "AA31 paymaster deposit too low",
		}
		classified := DecodeRawError(payload)
		require.Equal(t, KindPaymasterDepositTooLow, classified.Kind)
		assert.Equal(t, -32500, classified.Raw.Code)
	})

	t.Run("malformed payload does not crash", func(t *testing.T) {
		assert.Equal(t, KindMalformedPayload, DecodeRawError("garbage").Kind)
		assert.Equal(t, KindMalformedPayload, DecodeRawError(nil).Kind)
		assert.Equal(t, KindMalformedPayload, DecodeRawError(map[string]any{}).Kind)
	})
}

func TestFailureKindString(t *testing.T) {
	assert.Equal(t, "invalid_account_nonce", KindInvalidAccountNonce.String())
	assert.Equal(t, "estimate_user_operation_gas_failed", KindUnknown.String())
}
