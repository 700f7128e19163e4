// Package errors provides unified error handling with structured codes.
// Codes travel over gRPC as a structpb detail so the detection service and
// eyeguard agree on failure categories.
package errors

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Code classifies a failure.
type Code int32

const (
	CodeUnspecified Code = iota
	Unknown
	Internal
	InvalidArgument
	Unavailable
	Timeout
	Cancelled
	ConfigInvalid
	CameraUnavailable
	CameraBindFailed
	DetectionFailed
	OverlayCreateFailed
	OverlayRemoveFailed
)

var codeNames = map[Code]string{
	CodeUnspecified:     "CODE_UNSPECIFIED",
	Unknown:             "UNKNOWN",
	Internal:            "INTERNAL",
	InvalidArgument:     "INVALID_ARGUMENT",
	Unavailable:         "UNAVAILABLE",
	Timeout:             "TIMEOUT",
	Cancelled:           "CANCELLED",
	ConfigInvalid:       "CONFIG_INVALID",
	CameraUnavailable:   "CAMERA_UNAVAILABLE",
	CameraBindFailed:    "CAMERA_BIND_FAILED",
	DetectionFailed:     "DETECTION_FAILED",
	OverlayCreateFailed: "OVERLAY_CREATE_FAILED",
	OverlayRemoveFailed: "OVERLAY_REMOVE_FAILED",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("CODE_%d", int32(c))
}

// codeFromName reverses String for codes read off the wire.
func codeFromName(name string) Code {
	for c, n := range codeNames {
		if n == name {
			return c
		}
	}
	return Unknown
}

// grpcCodeMap maps error codes to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	CodeUnspecified:     codes.Unknown,
	Unknown:             codes.Unknown,
	Internal:            codes.Internal,
	InvalidArgument:     codes.InvalidArgument,
	Unavailable:         codes.Unavailable,
	Timeout:             codes.DeadlineExceeded,
	Cancelled:           codes.Canceled,
	ConfigInvalid:       codes.InvalidArgument,
	CameraUnavailable:   codes.Unavailable,
	CameraBindFailed:    codes.FailedPrecondition,
	DetectionFailed:     codes.Internal,
	OverlayCreateFailed: codes.Internal,
	OverlayRemoveFailed: codes.Internal,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// Detail converts to the structpb form carried in gRPC status details.
func (e *AppError) Detail() *structpb.Struct {
	fields := map[string]any{
		"code":    e.Code.String(),
		"message": e.Message,
	}
	if len(e.Metadata) > 0 {
		md := make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		fields["metadata"] = md
	}
	detail, err := structpb.NewStruct(fields)
	if err != nil {
		return &structpb.Struct{}
	}
	return detail
}

// GRPCStatus returns a gRPC status with the detail attached.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Error())
	if detail, err := anypb.New(e.Detail()); err == nil {
		if withDetail, err := st.WithDetails(detail); err == nil {
			st = withDetail
		}
	}
	return st
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError extracts AppError from a gRPC error if present.
func FromGRPCError(err error) *AppError {
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: Unknown, Message: err.Error(), Cause: err}
	}

	for _, detail := range st.Details() {
		s, ok := detail.(*structpb.Struct)
		if !ok {
			continue
		}
		fields := s.GetFields()
		appErr := &AppError{
			Code:    codeFromName(fields["code"].GetStringValue()),
			Message: fields["message"].GetStringValue(),
			Cause:   err,
		}
		if md := fields["metadata"].GetStructValue(); md != nil {
			appErr.Metadata = make(map[string]string, len(md.GetFields()))
			for k, v := range md.GetFields() {
				appErr.Metadata[k] = v.GetStringValue()
			}
		}
		return appErr
	}

	return &AppError{Code: grpcToErrorCode(st.Code()), Message: st.Message(), Cause: err}
}

// grpcToErrorCode maps gRPC codes back to our error codes (best effort).
func grpcToErrorCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return InvalidArgument
	case codes.Unavailable:
		return Unavailable
	case codes.DeadlineExceeded:
		return Timeout
	case codes.Canceled:
		return Cancelled
	case codes.Internal:
		return Internal
	case codes.FailedPrecondition:
		return ConfigInvalid
	default:
		return Unknown
	}
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	switch appErr.Code {
	case Unavailable, Timeout, CameraUnavailable:
		return true
	default:
		return false
	}
}
