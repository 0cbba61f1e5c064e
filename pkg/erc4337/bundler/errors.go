package bundler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/mitchellh/mapstructure"
)

// RawBundlerError is the JSON-RPC error payload a bundler returns for
// eth_estimateUserOperationGas / eth_sendUserOperation. Data carries the
// revert reason when the bundler propagates one.
type RawBundlerError struct {
	Code    int    `json:"code"    mapstructure:"code"`
	Message string `json:"message" mapstructure:"message"`
	Data    string `json:"data,omitempty" mapstructure:"data"`
}

func (e *RawBundlerError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("bundler error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("bundler error %d: %s", e.Code, e.Message)
}

// FailureKind names one cause from the closed set of validation failures the
// EntryPoint reports. KindUnknown is the terminal fallback for payloads that
// match no known signature.
type FailureKind int

const (
	KindUnknown FailureKind = iota
	KindSenderAlreadyDeployed
	KindInitCodeReverted
	KindSenderAddressMismatch
	KindSenderNotDeployed
	KindInsufficientFunds
	KindExpiredOrNotDue
	KindAccountValidationReverted
	KindInvalidAccountSignature
	KindInvalidAccountNonce
	KindPaymasterNotDeployed
	KindPaymasterDepositTooLow
	KindPaymasterValidationReverted
	KindInvalidPaymasterSignature
	KindMalformedPayload
)

func (k FailureKind) String() string {
	switch k {
	case KindSenderAlreadyDeployed:
		return "sender_already_deployed"
	case KindInitCodeReverted:
		return "init_code_reverted"
	case KindSenderAddressMismatch:
		return "sender_address_mismatch"
	case KindSenderNotDeployed:
		return "sender_not_deployed"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindExpiredOrNotDue:
		return "expired_or_not_due"
	case KindAccountValidationReverted:
		return "account_validation_reverted"
	case KindInvalidAccountSignature:
		return "invalid_account_signature"
	case KindInvalidAccountNonce:
		return "invalid_account_nonce"
	case KindPaymasterNotDeployed:
		return "paymaster_not_deployed"
	case KindPaymasterDepositTooLow:
		return "paymaster_deposit_too_low"
	case KindPaymasterValidationReverted:
		return "paymaster_validation_reverted"
	case KindInvalidPaymasterSignature:
		return "invalid_paymaster_signature"
	case KindMalformedPayload:
		return "malformed_payload"
	default:
		return "estimate_user_operation_gas_failed"
	}
}

// UserOperationError is a classified bundler failure. Raw is the original
// payload and remains reachable through Unwrap for logging.
type UserOperationError struct {
	Kind FailureKind
	Raw  *RawBundlerError
}

func (e *UserOperationError) Error() string {
	if e.Raw == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind.String(), e.Raw.Error())
}

// Unwrap exposes the raw bundler payload as the cause.
func (e *UserOperationError) Unwrap() error {
	if e.Raw == nil {
		return nil
	}
	return e.Raw
}

// Is matches any UserOperationError of the same kind, so callers can branch
// with errors.Is(err, bundler.ErrInvalidAccountNonce).
func (e *UserOperationError) Is(target error) bool {
	t, ok := target.(*UserOperationError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks, one per kind.
var (
	ErrSenderAlreadyDeployed       = &UserOperationError{Kind: KindSenderAlreadyDeployed}
	ErrInitCodeReverted            = &UserOperationError{Kind: KindInitCodeReverted}
	ErrSenderAddressMismatch       = &UserOperationError{Kind: KindSenderAddressMismatch}
	ErrSenderNotDeployed           = &UserOperationError{Kind: KindSenderNotDeployed}
	ErrInsufficientFunds           = &UserOperationError{Kind: KindInsufficientFunds}
	ErrExpiredOrNotDue             = &UserOperationError{Kind: KindExpiredOrNotDue}
	ErrAccountValidationReverted   = &UserOperationError{Kind: KindAccountValidationReverted}
	ErrInvalidAccountSignature     = &UserOperationError{Kind: KindInvalidAccountSignature}
	ErrInvalidAccountNonce         = &UserOperationError{Kind: KindInvalidAccountNonce}
	ErrPaymasterNotDeployed        = &UserOperationError{Kind: KindPaymasterNotDeployed}
	ErrPaymasterDepositTooLow      = &UserOperationError{Kind: KindPaymasterDepositTooLow}
	ErrPaymasterValidationReverted = &UserOperationError{Kind: KindPaymasterValidationReverted}
	ErrInvalidPaymasterSignature   = &UserOperationError{Kind: KindInvalidPaymasterSignature}
	ErrEstimateUserOperationGas    = &UserOperationError{Kind: KindUnknown}
	ErrMalformedPayload            = &UserOperationError{Kind: KindMalformedPayload}
)

// signature binds an EntryPoint revert-string fragment to a failure kind.
// The table is matched top to bottom, first match wins. Order matters where
// fragments could coexist in a single revert string: the sender-address
// mismatch (AA14) must precede the generic init-code failure (AA13), since
// bundlers that re-simulate init code frequently concatenate both reasons.
type signature struct {
	pattern string
	kind    FailureKind
}

var signatures = []signature{
	{"AA10 sender already constructed", KindSenderAlreadyDeployed},
	{"AA14 initCode must return sender", KindSenderAddressMismatch},
	{"AA13 initCode failed or OOG", KindInitCodeReverted},
	{"AA15 initCode must create sender", KindInitCodeReverted},
	{"AA20 account not deployed", KindSenderNotDeployed},
	{"AA21 didn't pay prefund", KindInsufficientFunds},
	{"AA22 expired or not due", KindExpiredOrNotDue},
	{"AA23 reverted", KindAccountValidationReverted},
	{"AA24 signature error", KindInvalidAccountSignature},
	{"AA25 invalid account nonce", KindInvalidAccountNonce},
	{"AA30 paymaster not deployed", KindPaymasterNotDeployed},
	{"AA31 paymaster deposit too low", KindPaymasterDepositTooLow},
	{"AA32 paymaster expired or not due", KindExpiredOrNotDue},
	{"AA33 reverted", KindPaymasterValidationReverted},
	{"AA34 signature error", KindInvalidPaymasterSignature},
}

// Classify maps a raw bundler payload onto exactly one failure kind. It is a
// pure function: identical payloads always classify identically, and a
// well-formed payload never fails to classify. Unmatched messages fall
// through to the KindUnknown fallback with the payload preserved verbatim.
func Classify(raw *RawBundlerError) *UserOperationError {
	if raw == nil {
		return &UserOperationError{Kind: KindMalformedPayload}
	}

	haystack := raw.Message
	if raw.Data != "" {
		haystack = haystack + " " + raw.Data
	}

	for _, sig := range signatures {
		if strings.Contains(haystack, sig.pattern) {
			return &UserOperationError{Kind: sig.kind, Raw: raw}
		}
	}

	return &UserOperationError{Kind: KindUnknown, Raw: raw}
}

// ClassifyError adapts arbitrary errors coming out of the RPC layer. JSON-RPC
// errors (go-ethereum rpc.Error, optionally rpc.DataError) are decoded into a
// RawBundlerError and classified; anything else passes through unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	var alreadyClassified *UserOperationError
	if errors.As(err, &alreadyClassified) {
		return err
	}

	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return err
	}

	raw := &RawBundlerError{
		Code:    rpcErr.ErrorCode(),
		Message: rpcErr.Error(),
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			raw.Data = s
		}
	}

	return Classify(raw)
}

// DecodeRawError decodes a loosely-typed payload (e.g. a JSON map pulled out
// of an HTTP response) into a RawBundlerError and classifies it. Structurally
// invalid payloads yield KindMalformedPayload rather than an error.
func DecodeRawError(payload any) *UserOperationError {
	if payload == nil {
		return &UserOperationError{Kind: KindMalformedPayload}
	}

	if raw, ok := payload.(*RawBundlerError); ok {
		return Classify(raw)
	}

	var raw RawBundlerError
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &raw,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return &UserOperationError{Kind: KindMalformedPayload}
	}
	if err := dec.Decode(payload); err != nil || (raw.Message == "" && raw.Code == 0) {
		return &UserOperationError{Kind: KindMalformedPayload}
	}

	return Classify(&raw)
}
