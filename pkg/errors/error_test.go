package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "itsm/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{ProblemNotFound, "Problem not found"},
		{InvalidParams, "Invalid parameters"},
		{DependencyConflict, "Resource has dependent records"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatusAndKind(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
		wantKind   Kind
	}{
		{Success, 200, KindNone},
		{InvalidParams, 400, KindValidation},
		{ValidationFailed, 400, KindValidation},
		{InvalidStatus, 400, KindValidation},
		{InvalidSolutionType, 400, KindValidation},
		{Unauthorized, 401, KindAuthorization},
		{InvalidCredentials, 401, KindAuthorization},
		{PermissionDenied, 403, KindAuthorization},
		{ProblemNotFound, 404, KindNotFound},
		{IncidentNotFound, 404, KindNotFound},
		{AccountNotFound, 404, KindNotFound},
		{DependencyConflict, 409, KindDependencyConflict},
		{AccountAlreadyExists, 409, KindDependencyConflict},
		{DatabaseUnavailable, 503, KindTransient},
		{DatabaseTimeout, 504, KindTransient},
		{DatabaseError, 500, KindInternal},
		{ProblemCreateFailed, 500, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
			if got := tt.code.Kind(); got != tt.wantKind {
				t.Errorf("Kind() = %v, want %v", got, tt.wantKind)
			}
		})
	}
}

func TestNew(t *testing.T) {
	err := New(ProblemNotFound)

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Code != ProblemNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ProblemNotFound)
	}
	if err.Kind != KindNotFound {
		t.Errorf("Kind = %v, want %v", err.Kind, KindNotFound)
	}
	if err.Error() != ProblemNotFound.Message() {
		t.Errorf("Error() = %v, want %v", err.Error(), ProblemNotFound.Message())
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ProblemNotFound, "problem %d not found", int64(123))

	want := "problem 123 not found"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrap(originalErr, DatabaseUnavailable)

	if wrappedErr.Code != DatabaseUnavailable {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, DatabaseUnavailable)
	}
	if wrappedErr.Unwrap() != originalErr {
		t.Error("Unwrap() should return original error")
	}
	if Wrap(nil, DatabaseError) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestError_WithDetail(t *testing.T) {
	err := New(ValidationFailed).
		WithDetail("field", "title").
		WithDetail("reason", "required")

	if err.Details["field"] != "title" {
		t.Error("Field detail not set correctly")
	}
	if err.Details["reason"] != "required" {
		t.Error("Reason detail not set correctly")
	}
}

func TestError_WithMessage(t *testing.T) {
	customMsg := "custom error message"
	err := New(InternalServerError).WithMessage(customMsg)

	if err.Error() != customMsg {
		t.Errorf("Error() = %v, want %v", err.Error(), customMsg)
	}
}

func TestGetCodeAndKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		want     ErrorCode
		wantKind Kind
	}{
		{name: "nil error", err: nil, want: Success, wantKind: KindNone},
		{name: "custom error", err: New(ProblemNotFound), want: ProblemNotFound, wantKind: KindNotFound},
		{name: "wrapped custom error", err: fmt.Errorf("load: %w", New(PermissionDenied)), want: PermissionDenied, wantKind: KindAuthorization},
		{name: "standard error", err: errors.New("standard error"), want: InternalServerError, wantKind: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
			if got := GetKind(tt.err); got != tt.wantKind {
				t.Errorf("GetKind() = %v, want %v", got, tt.wantKind)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := New(ProblemNotFound)

	if !Is(err, ProblemNotFound) {
		t.Error("Is() should return true for matching code")
	}
	if Is(err, DatabaseError) {
		t.Error("Is() should return false for non-matching code")
	}
	if Is(nil, ProblemNotFound) {
		t.Error("Is() should return false for nil error")
	}
}

func TestCommonErrorConstructors(t *testing.T) {
	t.Run("BadRequest", func(t *testing.T) {
		err := BadRequest("invalid input")
		if err.Code != InvalidParams {
			t.Error("BadRequest should use InvalidParams code")
		}
	})

	t.Run("UnauthorizedError", func(t *testing.T) {
		if err := UnauthorizedError(""); err.Code != Unauthorized {
			t.Error("UnauthorizedError should use Unauthorized code")
		}
	})

	t.Run("ForbiddenError", func(t *testing.T) {
		err := ForbiddenError("gestionar_problemas required")
		if err.Code != PermissionDenied {
			t.Error("ForbiddenError should use PermissionDenied code")
		}
		if err.Error() != "gestionar_problemas required" {
			t.Errorf("Error() = %v", err.Error())
		}
	})

	t.Run("InternalError", func(t *testing.T) {
		err := InternalError(errors.New("db error"))
		if err.Code != InternalServerError {
			t.Error("InternalError should use InternalServerError code")
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError("solution_type", "must be WORKAROUND or PERMANENT_FIX")
		if err.Code != ValidationFailed {
			t.Error("ValidationError should use ValidationFailed code")
		}
		if err.Details["field"] != "solution_type" {
			t.Error("Field detail not set")
		}
	})
}

func TestWrapRetagsKindOfExistingError(t *testing.T) {
	err := New(RecordNotFound).WithDetail("id", int64(9))
	wrapped := Wrap(err, ProblemNotFound)

	if wrapped != err {
		t.Fatal("Wrap should retag an existing *Error in place")
	}
	if wrapped.Kind != KindNotFound || wrapped.Details["id"] != int64(9) {
		t.Errorf("unexpected retag result: %+v", wrapped)
	}

	conflict := Wrap(New(InvalidParams), DependencyConflict)
	if conflict.Kind != KindDependencyConflict {
		t.Errorf("Kind = %v, want %v", conflict.Kind, KindDependencyConflict)
	}
}

func TestGetKindReadsRecordedKind(t *testing.T) {
	err := Wrapf(errors.New("dial tcp: timeout"), DatabaseTimeout, "list problems")
	if err.Kind != KindTransient {
		t.Fatalf("Kind = %v, want %v", err.Kind, KindTransient)
	}

	// A caller may reclassify without changing the status code.
	err.Kind = KindInternal
	if got := GetKind(fmt.Errorf("service: %w", err)); got != KindInternal {
		t.Errorf("GetKind() = %v, want %v", got, KindInternal)
	}

	// Literal errors without a kind fall back to their code.
	literal := &Error{Code: PermissionDenied}
	if got := GetKind(literal); got != KindAuthorization {
		t.Errorf("GetKind() = %v, want %v", got, KindAuthorization)
	}
}
