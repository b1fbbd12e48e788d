package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"
)

func TestMakeCode(t *testing.T) {
	tests := []struct {
		service  int
		category int
		sequence int
		expected int
	}{
		{0, 0, 0, 0},
		{0, 1, 1, 1001},
		{0, 11, 0, 11000},
		{30, 1, 0, 3001000},
		{30, 10, 1, 3010001},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%d_%d", tt.service, tt.category, tt.sequence), func(t *testing.T) {
			got := MakeCode(tt.service, tt.category, tt.sequence)
			if got != tt.expected {
				t.Errorf("MakeCode(%d, %d, %d) = %d, want %d",
					tt.service, tt.category, tt.sequence, got, tt.expected)
			}
		})
	}
}

func TestParseCode(t *testing.T) {
	tests := []struct {
		code             int
		expectedService  int
		expectedCategory int
		expectedSequence int
	}{
		{0, 0, 0, 0},
		{1001, 0, 1, 1},
		{3001000, 30, 1, 0},
		{3010001, 30, 10, 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.code), func(t *testing.T) {
			service, category, sequence := ParseCode(tt.code)
			if service != tt.expectedService || category != tt.expectedCategory || sequence != tt.expectedSequence {
				t.Errorf("ParseCode(%d) = (%d, %d, %d), want (%d, %d, %d)",
					tt.code, service, category, sequence,
					tt.expectedService, tt.expectedCategory, tt.expectedSequence)
			}
		})
	}
}

func TestWithCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := ErrVectorStoreUnavailable.WithCause(cause)

	if !errors.Is(err, ErrVectorStoreUnavailable) {
		t.Error("wrapped error should match its base errno")
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error should unwrap to its cause")
	}
	// 原始 Errno 不应被修改
	if ErrVectorStoreUnavailable.cause != nil {
		t.Error("base errno must not be mutated by WithCause")
	}
}

func TestWithMessage(t *testing.T) {
	err := ErrInvalidInput.WithMessage("query must not be empty")
	if err.MessageEN != "query must not be empty" {
		t.Errorf("unexpected message: %s", err.MessageEN)
	}
	if err.Code != ErrInvalidInput.Code {
		t.Error("WithMessage must preserve the error code")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		errno    *Errno
		expected int
	}{
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrIndexSchemaConflict, http.StatusConflict},
		{ErrVectorStoreUnavailable, http.StatusServiceUnavailable},
		{ErrEmbeddingGeneration, http.StatusBadGateway},
		{ErrInternal, http.StatusInternalServerError},
		{ErrRequestTimeout, http.StatusRequestTimeout},
	}

	for _, tt := range tests {
		if got := tt.errno.HTTPStatus(); got != tt.expected {
			t.Errorf("errno %d HTTPStatus() = %d, want %d", tt.errno.Code, got, tt.expected)
		}
	}
}

func TestGRPCStatus(t *testing.T) {
	if got := ErrInvalidInput.GRPCStatus(); got != codes.InvalidArgument {
		t.Errorf("ErrInvalidInput GRPCStatus() = %s, want InvalidArgument", got)
	}
	if got := ErrVectorStoreUnavailable.GRPCStatus(); got != codes.Unavailable {
		t.Errorf("ErrVectorStoreUnavailable GRPCStatus() = %s, want Unavailable", got)
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil) != nil {
		t.Error("FromError(nil) should return nil")
	}

	e := FromError(ErrInvalidInput)
	if e.Code != ErrInvalidInput.Code {
		t.Error("FromError should pass through Errno unchanged")
	}

	plain := errors.New("boom")
	e = FromError(plain)
	if e.Code != ErrInternal.Code {
		t.Error("FromError should wrap plain errors as ErrInternal")
	}
	if !errors.Is(e, plain) {
		t.Error("wrapped plain error should be preserved as cause")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Register with duplicate code should panic")
		}
	}()
	Register(&Errno{Code: ErrInvalidInput.Code, MessageEN: "dup"})
}
