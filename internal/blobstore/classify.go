package blobstore

import (
	"bytes"
	"io"
	"strings"

	"github.com/keeperdata/keeperdata/internal/kderrors"
)

// classify maps an S3 SDK error into a kderrors.KeeperError, in the
// same ordered-pattern idiom as the teacher's lode.classifyError.
func classify(err error, op, key string) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "notfound", "nosuchkey", "404", "not found"):
		return kderrors.New(kderrors.ErrStorageNotFound, op, key, err)
	case containsAny(msg, "slowdown", "throttl", "429", "toomanyrequests"):
		return kderrors.New(kderrors.ErrStorageTransient, op, key, err)
	case containsAny(msg, "timeout", "timed out", "deadline exceeded", "connection reset", "connection refused"):
		return kderrors.New(kderrors.ErrStorageTransient, op, key, err)
	case containsAny(msg, "accessdenied", "forbidden", "403", "unauthorized", "401"):
		return kderrors.New(kderrors.ErrStoragePermanent, op, key, err)
	default:
		return kderrors.New(kderrors.ErrStoragePermanent, op, key, err)
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func awsStr(s string) *string { return &s }

func awsStrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func awsI32(n int32) *int32 { return &n }

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefI64(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}

func derefBool(b *bool) bool {
	if b == nil {
		return false
	}
	return *b
}

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }
