package api

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/lnbridge/internal/core/domain"
)

// ErrorDomain is set on every ErrorInfo detail.
const ErrorDomain = "lnbridge"

var (
	errSubscriptionDropped = errors.New("subscription dropped, consumer too slow")
	errJournalDisabled     = errors.New("event journal is disabled")
	errUnknownMethod       = errors.New("unknown method")
)

// toStatus converts an error into a gRPC status carrying an ErrorInfo with
// the failure kind as reason.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code, reason := classify(err)
	st := status.New(code, err.Error())
	if detailed, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: ErrorDomain}); derr == nil {
		st = detailed
	}
	return st.Err()
}

func classify(err error) (codes.Code, string) {
	var ne *domain.NodeError
	switch {
	case errors.As(err, &ne):
		return nodeErrorCode(ne.Kind), string(ne.Kind)
	case errors.Is(err, domain.ErrInvalidArgument):
		return codes.InvalidArgument, "invalid_argument"
	case errors.Is(err, domain.ErrChannelNotFound):
		return codes.NotFound, "channel_not_found"
	case errors.Is(err, domain.ErrPeerAddressRequired):
		return codes.FailedPrecondition, "peer_address_required"
	case errors.Is(err, errSubscriptionDropped):
		return codes.ResourceExhausted, "subscription_dropped"
	case errors.Is(err, errJournalDisabled), errors.Is(err, errUnknownMethod):
		return codes.Unimplemented, "unimplemented"
	case errors.Is(err, context.Canceled):
		return codes.Canceled, "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded, "deadline_exceeded"
	default:
		return codes.Internal, "internal"
	}
}

func nodeErrorCode(kind domain.NodeErrorKind) codes.Code {
	switch kind {
	case domain.NodeErrInvalidInvoice, domain.NodeErrInvalidAmount, domain.NodeErrInvalidAddress:
		return codes.InvalidArgument
	case domain.NodeErrInsufficientFunds, domain.NodeErrAlreadyRunning:
		return codes.FailedPrecondition
	case domain.NodeErrDuplicatePayment:
		return codes.AlreadyExists
	case domain.NodeErrNotRunning, domain.NodeErrConnectionFailed:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// ErrorReason extracts the ErrorInfo reason from a status error.
func ErrorReason(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}

// httpStatus maps gRPC codes for the JSON gateway.
func httpStatus(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.FailedPrecondition:
		return http.StatusPreconditionFailed
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Canceled:
		return 499
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
