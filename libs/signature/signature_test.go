package signature

import "testing"

func TestSignDeterministic(t *testing.T) {
	a, err := Sign("secret", "POST", "/v1/order", "1700000000", `{"side":"buy"}`)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	b, err := Sign("secret", "POST", "/v1/order", "1700000000", `{"side":"buy"}`)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if a != b {
		t.Fatalf("expected deterministic signature, got %q and %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestVerifyRejectsAnyAlteredInput(t *testing.T) {
	const secret = "secret"
	body := `{"side":"buy","size":"1"}`
	sig, err := Sign(secret, "POST", "/v1/order", "1700000000", body)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	ok, err := Verify(secret, sig, "POST", "/v1/order", "1700000000", body)
	if err != nil || !ok {
		t.Fatalf("expected valid signature, ok=%v err=%v", ok, err)
	}

	cases := []struct {
		name                      string
		method, path, nonce, body string
	}{
		{"method", "GET", "/v1/order", "1700000000", body},
		{"path", "POST", "/v1/orders", "1700000000", body},
		{"nonce", "POST", "/v1/order", "1700000001", body},
		{"body", "POST", "/v1/order", "1700000000", `{"side":"buy","size":"2"}`},
	}
	for _, tc := range cases {
		ok, err := Verify(secret, sig, tc.method, tc.path, tc.nonce, tc.body)
		if err != nil {
			t.Fatalf("%s: verify: %v", tc.name, err)
		}
		if ok {
			t.Fatalf("%s: altered input accepted", tc.name)
		}
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	sig, err := Sign("secret", "GET", "/v1/balance", "1", nil)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ok, err := Verify("other", sig, "GET", "/v1/balance", "1", nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("signature verified with the wrong secret")
	}
}

func TestSignStructBodyMatchesJSON(t *testing.T) {
	type order struct {
		Side string `json:"side"`
		Size int    `json:"size"`
	}

	fromStruct, err := Sign("secret", "POST", "/v1/order", "7", order{Side: "sell", Size: 3})
	if err != nil {
		t.Fatalf("sign struct: %v", err)
	}
	fromString, err := Sign("secret", "POST", "/v1/order", "7", `{"side":"sell","size":3}`)
	if err != nil {
		t.Fatalf("sign string: %v", err)
	}
	if fromStruct != fromString {
		t.Fatalf("struct body did not serialize to canonical JSON: %q vs %q", fromStruct, fromString)
	}
}
