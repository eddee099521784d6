package errors

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"io"
	"io/fs"
	"net"
	"net/url"
	"syscall"
)

// Classify maps any error to a kind. The mapping is total: every input
// lands somewhere, with Unknown as the terminal fallback, so callers
// can rely on classification never failing. Errors already produced by
// this package pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if stderrors.As(err, &e) {
		return e
	}

	classified := classify(err)
	classified.Function, classified.File, classified.Line = callerFrame(1)
	return classified
}

func classify(err error) *Error {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return Wrap(KindTimeout, err)
	case stderrors.Is(err, context.Canceled):
		return Wrap(KindCancelled, err)
	}

	var urlErr *url.Error
	if stderrors.As(err, &urlErr) {
		if urlErr.Op == "parse" {
			return Wrap(KindInvalidURL, err)
		}
		if urlErr.Timeout() {
			return Wrap(KindTimeout, err)
		}
		return classify(urlErr.Err)
	}

	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return Wrap(KindDNSFailure, err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return Wrap(KindTimeout, err)
	}

	switch {
	case stderrors.Is(err, syscall.ECONNREFUSED),
		stderrors.Is(err, syscall.ECONNRESET),
		stderrors.Is(err, syscall.ECONNABORTED),
		stderrors.Is(err, syscall.EPIPE),
		stderrors.Is(err, io.ErrClosedPipe):
		return Wrap(KindConnectionLost, err)
	case stderrors.Is(err, syscall.ENOSPC):
		return Wrap(KindDiskFull, err)
	case stderrors.Is(err, fs.ErrNotExist):
		return Wrap(KindFileNotFound, err)
	case stderrors.Is(err, fs.ErrPermission):
		return Wrap(KindAccessDenied, err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &syntaxErr) || stderrors.As(err, &typeErr) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) {
		return Wrap(KindDecodingFailed, err)
	}

	var marshalErr *json.MarshalerError
	var unsupportedType *json.UnsupportedTypeError
	var unsupportedValue *json.UnsupportedValueError
	if stderrors.As(err, &marshalErr) || stderrors.As(err, &unsupportedType) ||
		stderrors.As(err, &unsupportedValue) {
		return Wrap(KindEncodingFailed, err)
	}

	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		return Wrap(KindRecordNotFound, err)
	case stderrors.Is(err, sql.ErrTxDone):
		return Wrap(KindTransactionFailed, err)
	case stderrors.Is(err, sql.ErrConnDone):
		return Wrap(KindConnectionFailed, err)
	}

	return Wrap(KindUnknown, err)
}

// FromHTTPStatus classifies an HTTP response status. 2xx returns nil
// (no error); 429 and 503 specialize into RateLimited and Maintenance
// before the generic 4xx/5xx buckets; statuses outside 200-599 mean the
// response itself is broken.
func FromHTTPStatus(status int) *Error {
	var e *Error
	switch {
	case status >= 200 && status <= 299:
		return nil
	case status == 429:
		e = E(KindRateLimited)
	case status == 503:
		e = E(KindMaintenance)
	case status >= 400 && status <= 499:
		e = E(KindClientError)
	case status >= 500 && status <= 599:
		e = E(KindServerError)
	default:
		e = E(KindInvalidResponse)
	}
	e.Status = status
	e.Function, e.File, e.Line = callerFrame(1)
	return e
}
