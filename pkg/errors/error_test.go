package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "codeblack/pkg/errors"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{ValidationFailed, 400},
		{RoundNotActive, 400},
		{LanguageNotSupported, 400},
		{InvalidCredentials, 401},
		{TokenInvalid, 401},
		{Forbidden, 403},
		{UserRemoved, 403},
		{SubmissionNotFound, 404},
		{AlreadySubmitted, 409},
		{JudgeQueueFull, 429},
		{ExternalJudgeUnavailable, 503},
		{JudgeSystemError, 500},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestNewAndNewf(t *testing.T) {
	err := New(AlreadySubmitted)
	if err.Code != AlreadySubmitted {
		t.Errorf("Code = %v, want %v", err.Code, AlreadySubmitted)
	}
	if err.Error() != AlreadySubmitted.Message() {
		t.Errorf("Error() = %v, want %v", err.Error(), AlreadySubmitted.Message())
	}

	formatted := Newf(NoMoreRounds, "round %d is not configured", 3)
	if formatted.Error() != "round 3 is not configured" {
		t.Errorf("Error() = %v", formatted.Error())
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := Wrap(cause, CacheError)
	if wrapped.Code != CacheError {
		t.Errorf("Code = %v, want %v", wrapped.Code, CacheError)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped error should match its cause")
	}
	if Wrap(nil, CacheError) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestGetCodeThroughFmtWrapping(t *testing.T) {
	base := New(RoundExpired)
	err := fmt.Errorf("submit: %w", base)

	if got := GetCode(err); got != RoundExpired {
		t.Errorf("GetCode() = %v, want %v", got, RoundExpired)
	}
	if !Is(err, RoundExpired) {
		t.Error("Is() should see code through fmt wrapping")
	}
	if got := GetCode(errors.New("plain")); got != InternalServerError {
		t.Errorf("GetCode(plain) = %v, want %v", got, InternalServerError)
	}
	if got := GetCode(nil); got != Success {
		t.Errorf("GetCode(nil) = %v, want %v", got, Success)
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("username", "required")
	if err.Code != ValidationFailed {
		t.Fatalf("expected ValidationFailed, got %v", err.Code)
	}
	if err.Details["field"] != "username" || err.Details["reason"] != "required" {
		t.Fatalf("unexpected details: %v", err.Details)
	}
}
