package security

import "testing"

func testParams() Argon2Params {
	return Argon2Params{
		Memory:      16 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashVerifyRoundTrip(t *testing.T) {
	encoded, err := HashPassword("correct horse 1", testParams())
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	ok, err := VerifyPassword("correct horse 1", encoded)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected password to verify")
	}

	ok, err = VerifyPassword("wrong horse 1", encoded)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("wrong password verified")
	}
}

func TestHashesAreSalted(t *testing.T) {
	a, err := HashPassword("samepassword1", testParams())
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := HashPassword("samepassword1", testParams())
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct salts to produce distinct encodings")
	}
}

func TestVerifyRejectsMalformedEncoding(t *testing.T) {
	if _, err := VerifyPassword("anything1", "not-an-argon2-hash"); err == nil {
		t.Fatal("expected error for malformed encoding")
	}
}
