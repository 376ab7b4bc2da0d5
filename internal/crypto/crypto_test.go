package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := New()
	ctx := t.Context()

	plaintext := []byte(strings.Repeat("LID_FULL_IDENTIFIER|CPH|CHANGE_TYPE\nAB-01/123/0001|01/123/0001|I\n", 500))

	var ciphertext bytes.Buffer
	if err := c.EncryptStream(ctx, bytes.NewReader(plaintext), &ciphertext, "sw0rdfish", "pepper", int64(len(plaintext)), nil); err != nil {
		t.Fatalf("EncryptStream: %v", err)
	}

	var out bytes.Buffer
	if err := c.DecryptStream(ctx, bytes.NewReader(ciphertext.Bytes()), &out, "sw0rdfish", "pepper", int64(ciphertext.Len()), nil); err != nil {
		t.Fatalf("DecryptStream: %v", err)
	}

	if !bytes.Equal(out.Bytes(), plaintext) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", out.Len(), len(plaintext))
	}
}

func TestEncryptDecryptRoundTripEmptyInput(t *testing.T) {
	c := New()
	ctx := t.Context()

	var ciphertext bytes.Buffer
	if err := c.EncryptStream(ctx, bytes.NewReader(nil), &ciphertext, "pw", "salt", 0, nil); err != nil {
		t.Fatalf("EncryptStream: %v", err)
	}

	var out bytes.Buffer
	if err := c.DecryptStream(ctx, bytes.NewReader(ciphertext.Bytes()), &out, "pw", "salt", int64(ciphertext.Len()), nil); err != nil {
		t.Fatalf("DecryptStream: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected empty plaintext, got %d bytes", out.Len())
	}
}

func TestDecryptWrongPasswordFailsOnPadding(t *testing.T) {
	c := New()
	ctx := t.Context()

	plaintext := []byte("some row data that is definitely not block aligned")
	var ciphertext bytes.Buffer
	if err := c.EncryptStream(ctx, bytes.NewReader(plaintext), &ciphertext, "correct-horse", "salt", int64(len(plaintext)), nil); err != nil {
		t.Fatalf("EncryptStream: %v", err)
	}

	var out bytes.Buffer
	err := c.DecryptStream(ctx, bytes.NewReader(ciphertext.Bytes()), &out, "wrong-password", "salt", int64(ciphertext.Len()), nil)
	if err == nil {
		t.Fatalf("expected decryption with the wrong password to fail")
	}
}

func TestProgressReportsZeroAndHundred(t *testing.T) {
	c := New()
	ctx := t.Context()

	plaintext := bytes.Repeat([]byte{0x42}, bufSize*3+17)
	var ticks []Progress
	var ciphertext bytes.Buffer
	err := c.EncryptStream(ctx, bytes.NewReader(plaintext), &ciphertext, "pw", "salt", int64(len(plaintext)), func(p Progress) {
		ticks = append(ticks, p)
	})
	if err != nil {
		t.Fatalf("EncryptStream: %v", err)
	}
	if len(ticks) < 2 {
		t.Fatalf("expected at least a 0%% and 100%% tick, got %d ticks", len(ticks))
	}
	if ticks[0].Percent != 0 {
		t.Fatalf("first tick percent = %d, want 0", ticks[0].Percent)
	}
	last := ticks[len(ticks)-1]
	if last.Percent != 100 || last.BytesDone != int64(len(plaintext)) {
		t.Fatalf("last tick = %+v, want 100%% at %d bytes", last, len(plaintext))
	}
}

func TestDeriveKeyIVIsDeterministic(t *testing.T) {
	k1, iv1 := deriveKeyIV("password", "salt")
	k2, iv2 := deriveKeyIV("password", "salt")
	if !bytes.Equal(k1, k2) || !bytes.Equal(iv1, iv2) {
		t.Fatalf("deriveKeyIV is not deterministic for identical inputs")
	}

	k3, _ := deriveKeyIV("different", "salt")
	if bytes.Equal(k1, k3) {
		t.Fatalf("deriveKeyIV produced identical keys for different passwords")
	}
}
