package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/shaiso/Bulksub/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		failure   Failure
		wantTag   domain.ErrorTag
		retryable bool
	}{
		{name: "403 status", failure: Failure{StatusCode: 403}, wantTag: domain.ErrorTagQuota, retryable: true},
		{name: "429 status", failure: Failure{StatusCode: 429}, wantTag: domain.ErrorTagQuota, retryable: true},
		{name: "429 code", failure: Failure{Code: "429"}, wantTag: domain.ErrorTagQuota, retryable: true},
		{name: "quota message", failure: Failure{Message: "The request cannot be completed because you have exceeded your Quota."}, wantTag: domain.ErrorTagQuota, retryable: true},
		{name: "quota beats 5xx", failure: Failure{StatusCode: 503, Message: "quota exhausted"}, wantTag: domain.ErrorTagQuota, retryable: true},
		{name: "quota beats 401", failure: Failure{StatusCode: 401, Message: "Daily Limit Exceeded"}, wantTag: domain.ErrorTagQuota, retryable: true},
		{name: "401 status", failure: Failure{StatusCode: 401, Message: "Invalid Credentials"}, wantTag: domain.ErrorTagAuth, retryable: true},
		{name: "401 code", failure: Failure{Code: "401"}, wantTag: domain.ErrorTagAuth, retryable: true},
		{name: "conn reset", failure: Failure{Code: CodeConnReset}, wantTag: domain.ErrorTagNetwork, retryable: true},
		{name: "timed out", failure: Failure{Code: CodeTimedOut}, wantTag: domain.ErrorTagNetwork, retryable: true},
		{name: "dns", failure: Failure{Code: CodeNotFound}, wantTag: domain.ErrorTagNetwork, retryable: true},
		{name: "timeout message", failure: Failure{Message: "request Timeout"}, wantTag: domain.ErrorTagNetwork, retryable: true},
		{name: "network message", failure: Failure{Message: "network unreachable"}, wantTag: domain.ErrorTagNetwork, retryable: true},
		{name: "400", failure: Failure{StatusCode: 400, Message: "subscriptionDuplicate"}, wantTag: domain.ErrorTagPermanent},
		{name: "404", failure: Failure{StatusCode: 404, Message: "channel not found"}, wantTag: domain.ErrorTagPermanent},
		{name: "500", failure: Failure{StatusCode: 500}, wantTag: domain.ErrorTagPermanent},
		{name: "502", failure: Failure{StatusCode: 502}, wantTag: domain.ErrorTagPermanent},
		{name: "409", failure: Failure{StatusCode: 409, Message: "conflict"}, wantTag: domain.ErrorTagUnknown},
		{name: "empty", failure: Failure{}, wantTag: domain.ErrorTagUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.failure)
			if got.Tag != tt.wantTag {
				t.Errorf("tag = %s, want %s", got.Tag, tt.wantTag)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", got.Retryable, tt.retryable)
			}
		})
	}
}

// --- FromError Tests ---

type fakeRemote struct {
	status int
	code   string
	msg    string
}

func (e *fakeRemote) Error() string     { return e.msg }
func (e *fakeRemote) StatusCode() int   { return e.status }
func (e *fakeRemote) ErrorCode() string { return e.code }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline reached" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestFromError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantTag  domain.ErrorTag
	}{
		{
			name:     "wrapped remote error",
			err:      fmt.Errorf("subscribe: %w", &fakeRemote{status: 403, code: "403", msg: "forbidden"}),
			wantCode: "403",
			wantTag:  domain.ErrorTagQuota,
		},
		{
			name:     "connection reset",
			err:      &net.OpError{Op: "read", Err: syscall.ECONNRESET},
			wantCode: CodeConnReset,
			wantTag:  domain.ErrorTagNetwork,
		},
		{
			name:     "dns not found",
			err:      &net.DNSError{Err: "no such host", Name: "example.invalid", IsNotFound: true},
			wantCode: CodeNotFound,
			wantTag:  domain.ErrorTagNetwork,
		},
		{
			name:     "context deadline",
			err:      fmt.Errorf("post: %w", context.DeadlineExceeded),
			wantCode: CodeTimedOut,
			wantTag:  domain.ErrorTagNetwork,
		},
		{
			name:     "net timeout",
			err:      &net.OpError{Op: "dial", Err: timeoutErr{}},
			wantCode: CodeTimedOut,
			wantTag:  domain.ErrorTagNetwork,
		},
		{
			name:    "plain error",
			err:     errors.New("something odd"),
			wantTag: domain.ErrorTagUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := FromError(tt.err)
			if f.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", f.Code, tt.wantCode)
			}
			if got := Classify(f).Tag; got != tt.wantTag {
				t.Errorf("tag = %s, want %s", got, tt.wantTag)
			}
		})
	}
}

func TestFromError_Nil(t *testing.T) {
	if f := FromError(nil); f != (Failure{}) {
		t.Errorf("expected zero Failure, got %+v", f)
	}
}

func TestFromError_DeadlineIsNotQuota(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()

	if got := ClassifyError(ctx.Err()).Tag; got != domain.ErrorTagNetwork {
		t.Errorf("tag = %s, want NETWORK", got)
	}
}
