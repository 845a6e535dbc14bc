package idempotency

import (
	"encoding/json"
	"testing"
)

func TestFingerprint_Deterministic(t *testing.T) {
	params := map[string]json.RawMessage{
		"amount":   json.RawMessage(`1500`),
		"currency": json.RawMessage(`"usd"`),
	}

	a := Fingerprint("payment.charge", params)
	b := Fingerprint("payment.charge", params)
	if a != b {
		t.Errorf("Fingerprint not deterministic: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("Fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := Fingerprint("payment.charge", map[string]json.RawMessage{
		"amount":   json.RawMessage(`1500`),
		"currency": json.RawMessage(`"usd"`),
		"customer": json.RawMessage(`"cus_123"`),
	})
	b := Fingerprint("payment.charge", map[string]json.RawMessage{
		"customer": json.RawMessage(`"cus_123"`),
		"currency": json.RawMessage(`"usd"`),
		"amount":   json.RawMessage(`1500`),
	})
	if a != b {
		t.Error("identical parameters in different insertion order hashed differently")
	}
}

func TestFingerprint_Sensitivity(t *testing.T) {
	base := Fingerprint("payment.charge", map[string]json.RawMessage{
		"amount": json.RawMessage(`1500`),
	})

	if got := Fingerprint("payment.refund", map[string]json.RawMessage{
		"amount": json.RawMessage(`1500`),
	}); got == base {
		t.Error("different operation names produced the same fingerprint")
	}

	if got := Fingerprint("payment.charge", map[string]json.RawMessage{
		"amount": json.RawMessage(`1501`),
	}); got == base {
		t.Error("different parameter values produced the same fingerprint")
	}

	if got := Fingerprint("payment.charge", map[string]json.RawMessage{
		"total": json.RawMessage(`1500`),
	}); got == base {
		t.Error("different parameter names produced the same fingerprint")
	}
}

func TestFingerprint_EmptyParams(t *testing.T) {
	a := Fingerprint("noop", nil)
	b := Fingerprint("noop", map[string]json.RawMessage{})
	if a != b {
		t.Error("nil and empty parameter maps hashed differently")
	}
}
