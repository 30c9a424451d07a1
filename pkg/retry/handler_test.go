package retry_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rohmanhakim/canopy-go/pkg/failure"
	"github.com/rohmanhakim/canopy-go/pkg/retry"
	"github.com/rohmanhakim/canopy-go/pkg/timeutil"
)

func defaultBackoffParam() timeutil.BackoffParam {
	return timeutil.NewBackoffParam(10*time.Millisecond, 2.0, 30*time.Second)
}

func params(maxAttempts int) retry.RetryParam {
	return retry.NewRetryParam(true, 42, maxAttempts, defaultBackoffParam())
}

// mockError is a mock implementation of failure.ClassifiedError for testing.
// kind drives retry eligibility the same way a real error's Kind() would.
type mockError struct {
	msg      string
	kind     failure.ErrorKind
	severity failure.Severity
}

func (m *mockError) Error() string              { return m.msg }
func (m *mockError) Severity() failure.Severity { return m.severity }
func (m *mockError) Kind() failure.ErrorKind    { return m.kind }

func retryableErr(msg string) *mockError {
	return &mockError{msg: msg, kind: failure.KindConnection, severity: failure.SeverityRecoverable}
}

func fatalErr(msg string) *mockError {
	return &mockError{msg: msg, kind: failure.KindHTTPClient, severity: failure.SeverityFatal}
}

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	callCount := 0
	fn := func() (string, failure.ClassifiedError) {
		callCount++
		return "success", nil
	}

	result := retry.Retry(params(3), fn)

	if result.IsFailure() {
		t.Fatalf("expected no error, got: %v", result.Err())
	}
	if result.Value() != "success" {
		t.Fatalf("expected 'success', got: %s", result.Value())
	}
	if result.Attempts() != 1 || callCount != 1 {
		t.Fatalf("expected 1 attempt/call, got attempts=%d calls=%d", result.Attempts(), callCount)
	}
}

func TestRetry_SuccessAfterRetries(t *testing.T) {
	callCount := 0
	fn := func() (string, failure.ClassifiedError) {
		callCount++
		if callCount < 3 {
			return "", retryableErr("transient error")
		}
		return "success", nil
	}

	result := retry.Retry(params(5), fn)

	if result.IsFailure() {
		t.Fatalf("expected no error, got: %v", result.Err())
	}
	if result.Attempts() != 3 || callCount != 3 {
		t.Fatalf("expected 3 attempts/calls, got attempts=%d calls=%d", result.Attempts(), callCount)
	}
}

func TestRetry_NonRetryableErrorReturnsImmediately(t *testing.T) {
	callCount := 0
	expectedErr := fatalErr("fatal error")
	fn := func() (string, failure.ClassifiedError) {
		callCount++
		return "", expectedErr
	}

	result := retry.Retry(params(5), fn)

	if result.IsSuccess() {
		t.Fatal("expected error, got nil")
	}
	if callCount != 1 {
		t.Fatalf("expected 1 call for non-retryable error, got: %d", callCount)
	}
	if result.Err().Error() != expectedErr.Error() {
		t.Fatalf("expected error '%s', got: '%s'", expectedErr.Error(), result.Err().Error())
	}
}

func TestRetry_ExhaustedAttempts(t *testing.T) {
	callCount := 0
	fn := func() (int, failure.ClassifiedError) {
		callCount++
		return 0, retryableErr("persistent transient error")
	}

	maxAttempts := 3
	result := retry.Retry(params(maxAttempts), fn)

	if result.IsSuccess() {
		t.Fatal("expected error after exhausting attempts, got nil")
	}
	if result.Attempts() != maxAttempts || callCount != maxAttempts {
		t.Fatalf("expected %d attempts/calls, got attempts=%d calls=%d", maxAttempts, result.Attempts(), callCount)
	}

	var retryErr *retry.RetryError
	errors.As(result.Err(), &retryErr)
	if retryErr.Cause != retry.ErrExhaustedAttempts {
		t.Fatalf("expected error cause 'ErrExhaustedAttempts', got: '%s'", retryErr.Cause)
	}
}

func TestRetry_MaxAttemptsLessThanOne(t *testing.T) {
	fn := func() (string, failure.ClassifiedError) {
		return "success", nil
	}

	result := retry.Retry(params(0), fn)

	if result.IsSuccess() {
		t.Fatal("expected error for MaxAttempts < 1, got nil")
	}
	var retryErr *retry.RetryError
	errors.As(result.Err(), &retryErr)
	if retryErr.Cause != retry.ErrZeroAttempt {
		t.Fatalf("expected error cause is ErrZeroAttempt, got %s", retryErr.Cause)
	}
	if result.Attempts() != 0 {
		t.Fatalf("expected 0 attempts, got: %d", result.Attempts())
	}
}

func TestRetry_GenericTypePointer(t *testing.T) {
	type Data struct{ Value int }

	callCount := 0
	fn := func() (*Data, failure.ClassifiedError) {
		callCount++
		if callCount < 2 {
			return nil, retryableErr("transient error")
		}
		return &Data{Value: 42}, nil
	}

	result := retry.Retry(params(3), fn)

	if result.IsFailure() {
		t.Fatalf("expected no error, got: %v", result.Err())
	}
	if result.Value() == nil || result.Value().Value != 42 {
		t.Fatalf("expected Value=42, got: %+v", result.Value())
	}
}

func TestRetry_MixedRetryableAndNonRetryable(t *testing.T) {
	callCount := 0
	fn := func() (string, failure.ClassifiedError) {
		callCount++
		switch callCount {
		case 1, 2:
			return "", retryableErr(fmt.Sprintf("retryable error %d", callCount))
		case 3:
			return "", fatalErr("non-retryable error")
		default:
			return "success", nil
		}
	}

	result := retry.Retry(params(5), fn)

	if result.IsSuccess() {
		t.Fatal("expected error, got nil")
	}
	if result.Attempts() != 3 || callCount != 3 {
		t.Fatalf("expected to stop at the non-retryable error, got attempts=%d calls=%d", result.Attempts(), callCount)
	}
}

func TestRetry_RateLimitedDoublesBackoff(t *testing.T) {
	callCount := 0
	var elapsed time.Duration
	start := time.Now()
	fn := func() (string, failure.ClassifiedError) {
		callCount++
		if callCount < 2 {
			return "", &mockError{msg: "429", kind: failure.KindRateLimited, severity: failure.SeverityRecoverable}
		}
		elapsed = time.Since(start)
		return "success", nil
	}

	result := retry.Retry(params(3), fn)

	if result.IsFailure() {
		t.Fatalf("expected no error, got: %v", result.Err())
	}
	// base delay is 10ms; a 429 doubles it, so the observed gap should be
	// noticeably larger than the undoubled base delay.
	if elapsed < 15*time.Millisecond {
		t.Fatalf("expected 429 backoff to be doubled, observed gap: %v", elapsed)
	}
}

func BenchmarkRetry(b *testing.B) {
	fn := func() (int, failure.ClassifiedError) {
		return 42, nil
	}
	p := params(3)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = retry.Retry(p, fn)
	}
}
