package password

import "testing"

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("secret")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "secret" {
		t.Fatal("hash equals plaintext")
	}

	tests := []struct {
		plain string
		want  bool
	}{
		{"secret", true},
		{"Secret", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Verify(tt.plain, hash); got != tt.want {
			t.Errorf("Verify(%q) = %v, want %v", tt.plain, got, tt.want)
		}
	}
}

func TestHashIsSalted(t *testing.T) {
	a, _ := Hash("same")
	b, _ := Hash("same")
	if a == b {
		t.Error("two hashes of the same password are identical")
	}
	if !Verify("same", a) || !Verify("same", b) {
		t.Error("salted hashes do not verify")
	}
}

func TestVerifyGarbageHash(t *testing.T) {
	if Verify("x", "not-a-bcrypt-hash") {
		t.Error("garbage hash verified")
	}
}

func TestHashRejectsLongPassword(t *testing.T) {
	long := make([]byte, MaxLength+1)
	for i := range long {
		long[i] = 'p'
	}
	if _, err := Hash(string(long)); err != ErrTooLong {
		t.Fatalf("err = %v, want ErrTooLong", err)
	}
	if _, err := Hash(string(long[:MaxLength])); err != nil {
		t.Fatalf("72-byte password rejected: %v", err)
	}
}
