// Package crypto implements StreamingCrypto (spec.md §4.1): streaming
// AES-256-CBC with PKCS7 padding, keyed by PBKDF2-SHA1 over a per-file
// derived password and a process-wide salt.
//
// The streaming discipline (fixed-size buffer, bounded memory regardless
// of payload size) is grounded on the teacher's frame-decoder read loop
// (ipc/frame.go), generalized from a length-prefixed message reader to a
// block-cipher stream.
package crypto

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"github.com/keeperdata/keeperdata/internal/kderrors"
)

// bufSize is the fixed streaming buffer size (§4.1: "fixed 64 KiB buffer").
const bufSize = 64 * 1024

const (
	pbkdf2Iterations = 10000
	keyLen           = 32 // AES-256
	ivLen            = 16
)

// Progress reports a streaming tick. Emitted at 0%, 100%, and integer
// percent increments when TotalBytes is known (§4.1).
type Progress struct {
	BytesDone  int64
	TotalBytes int64
	Percent    int
}

// ProgressFunc receives progress ticks. May be nil.
type ProgressFunc func(Progress)

// StreamingCrypto is the contract consumed by the acquisition and
// ingestion pipelines.
type StreamingCrypto interface {
	EncryptStream(ctx context.Context, src io.Reader, dst io.Writer, password, salt string, totalBytes int64, progress ProgressFunc) error
	DecryptStream(ctx context.Context, src io.Reader, dst io.Writer, password, salt string, totalBytes int64, progress ProgressFunc) error
	EncryptFile(ctx context.Context, srcPath, dstPath, password, salt string, progress ProgressFunc) error
	DecryptFile(ctx context.Context, srcPath, dstPath, password, salt string, progress ProgressFunc) error
}

// AES256CBC is the default StreamingCrypto implementation.
type AES256CBC struct{}

// New returns the default StreamingCrypto implementation.
func New() *AES256CBC { return &AES256CBC{} }

// deriveKeyIV derives a 32-byte key and 16-byte IV from (password, salt)
// via PBKDF2-SHA1, 10,000 iterations, per spec.md §4.1.
func deriveKeyIV(password, salt string) (key, iv []byte) {
	material := pbkdf2.Key([]byte(password), []byte(salt), pbkdf2Iterations, keyLen+ivLen, sha1.New)
	return material[:keyLen], material[keyLen:]
}

// EncryptStream encrypts src into dst using AES-256-CBC with PKCS7
// padding, in bounded 64 KiB chunks. A trailing partial (or exactly
// block-sized) chunk is held back across reads so padding is applied
// exactly once, after the source is fully drained — src.Read is free
// to return a final data-bearing read with a nil error and only
// signal io.EOF on the following, empty read (as bytes.Reader does).
func (c *AES256CBC) EncryptStream(ctx context.Context, src io.Reader, dst io.Writer, password, salt string, totalBytes int64, progress ProgressFunc) error {
	key, iv := deriveKeyIV(password, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return kderrors.New(kderrors.ErrCryptoIO, "encrypt", "", err)
	}
	blockSize := block.BlockSize()
	mode := cipher.NewCBCEncrypter(block, iv)

	buf := make([]byte, bufSize)
	var pending []byte // holds the trailing bytes until we know they're final
	var done int64
	lastPct := -1
	emit(progress, 0, totalBytes, &lastPct)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)

			// Encrypt everything except a trailing 1..blockSize bytes —
			// that remainder may still be the final, to-be-padded block
			// and must be held back until EOF.
			for len(pending) > blockSize {
				encryptable := (len(pending) - 1) / blockSize * blockSize
				out := make([]byte, encryptable)
				mode.CryptBlocks(out, pending[:encryptable])
				if _, err := dst.Write(out); err != nil {
					return kderrors.New(kderrors.ErrCryptoIO, "encrypt", "", err)
				}
				done += int64(encryptable)
				emit(progress, done, totalBytes, &lastPct)
				pending = pending[encryptable:]
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return kderrors.New(kderrors.ErrCryptoIO, "encrypt", "", readErr)
		}
	}

	padded := pkcs7Pad(pending, blockSize)
	out := make([]byte, len(padded))
	mode.CryptBlocks(out, padded)
	if _, err := dst.Write(out); err != nil {
		return kderrors.New(kderrors.ErrCryptoIO, "encrypt", "", err)
	}
	done += int64(len(padded))

	emit(progress, totalBytes, totalBytes, &lastPct)
	return nil
}

// DecryptStream decrypts src into dst, validating PKCS7 padding on the
// final block. Returns kderrors.ErrBadCredentials when the derived
// key/IV produce invalid padding (§4.1).
func (c *AES256CBC) DecryptStream(ctx context.Context, src io.Reader, dst io.Writer, password, salt string, totalBytes int64, progress ProgressFunc) error {
	key, iv := deriveKeyIV(password, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return kderrors.New(kderrors.ErrCryptoIO, "decrypt", "", err)
	}
	blockSize := block.BlockSize()
	mode := cipher.NewCBCDecrypter(block, iv)

	buf := make([]byte, bufSize)
	var pending []byte // holds the last ciphertext block until we know it's final
	var done int64
	lastPct := -1
	emit(progress, 0, totalBytes, &lastPct)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)

			// Decrypt all complete blocks except the trailing one; the
			// trailing block may still be the final (padded) block and
			// must be held back until we see EOF.
			completeBlocks := len(pending) / blockSize
			if completeBlocks > 1 {
				decryptable := (completeBlocks - 1) * blockSize
				out := make([]byte, decryptable)
				mode.CryptBlocks(out, pending[:decryptable])
				if _, err := dst.Write(out); err != nil {
					return kderrors.New(kderrors.ErrCryptoIO, "decrypt", "", err)
				}
				done += int64(decryptable)
				emit(progress, done, totalBytes, &lastPct)
				pending = pending[decryptable:]
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return kderrors.New(kderrors.ErrCryptoIO, "decrypt", "", readErr)
		}
	}

	if len(pending) == 0 || len(pending)%blockSize != 0 {
		return kderrors.New(kderrors.ErrBadCredentials, "decrypt", "", fmt.Errorf("ciphertext is not a multiple of the block size"))
	}

	out := make([]byte, len(pending))
	mode.CryptBlocks(out, pending)
	unpadded, err := pkcs7Unpad(out, blockSize)
	if err != nil {
		return kderrors.New(kderrors.ErrBadCredentials, "decrypt", "", err)
	}
	if _, err := dst.Write(unpadded); err != nil {
		return kderrors.New(kderrors.ErrCryptoIO, "decrypt", "", err)
	}
	done += int64(len(unpadded))
	emit(progress, totalBytes, totalBytes, &lastPct)

	return nil
}

// EncryptFile opens srcPath read-only and dstPath write-truncate,
// guaranteeing both are closed on every exit path (§4.1).
func (c *AES256CBC) EncryptFile(ctx context.Context, srcPath, dstPath, password, salt string, progress ProgressFunc) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return kderrors.New(kderrors.ErrCryptoIO, "encrypt", srcPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return kderrors.New(kderrors.ErrCryptoIO, "encrypt", srcPath, err)
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		return kderrors.New(kderrors.ErrCryptoIO, "encrypt", dstPath, err)
	}
	defer dst.Close()

	return c.EncryptStream(ctx, src, dst, password, salt, info.Size(), progress)
}

// DecryptFile opens srcPath read-only and dstPath write-truncate,
// guaranteeing both are closed on every exit path (§4.1).
func (c *AES256CBC) DecryptFile(ctx context.Context, srcPath, dstPath, password, salt string, progress ProgressFunc) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return kderrors.New(kderrors.ErrCryptoIO, "decrypt", srcPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return kderrors.New(kderrors.ErrCryptoIO, "decrypt", srcPath, err)
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		return kderrors.New(kderrors.ErrCryptoIO, "decrypt", dstPath, err)
	}
	defer dst.Close()

	return c.DecryptStream(ctx, src, dst, password, salt, info.Size(), progress)
}

func emit(progress ProgressFunc, done, total int64, lastPct *int) {
	if progress == nil {
		return
	}
	pct := 0
	if total > 0 {
		pct = int(done * 100 / total)
	} else if done == 0 {
		pct = 0
	}
	if pct == *lastPct && done != total {
		return
	}
	*lastPct = pct
	progress(Progress{BytesDone: done, TotalBytes: total, Percent: pct})
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(data, padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid ciphertext length")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("invalid PKCS7 padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("invalid PKCS7 padding")
		}
	}
	return data[:len(data)-padLen], nil
}
