package tools

import (
	"bytes"
	"errors"
	"io"
)

func asValidationError(err error, target **ValidationError) bool {
	return errors.As(err, target)
}

func asRetryableError(err error, target **RetryableError) bool {
	return errors.As(err, target)
}

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
