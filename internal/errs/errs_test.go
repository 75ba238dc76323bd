package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"pgregory.net/rapid"
)

var messageGen = rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`)

func testCodedErrorsSurviveWrapping(t *rapid.T) {
	code := rapid.SampledFrom(Codes).Draw(t, "code")
	message := messageGen.Draw(t, "message")

	var err error
	if rapid.Bool().Draw(t, "withCause") {
		err = Wrap(code, message, errors.New(messageGen.Draw(t, "cause")))
	} else {
		err = New(code, message)
	}
	for depth := rapid.IntRange(0, 3).Draw(t, "depth"); depth > 0; depth-- {
		err = fmt.Errorf("layer %d: %w", depth, err)
	}

	if got := CodeOf(err); got != code {
		t.Fatalf("CodeOf = %q, want %q", got, code)
	}
	if got := MessageOf(err); got != message {
		t.Fatalf("MessageOf = %q, want %q", got, message)
	}
	if !Is(err, code) {
		t.Fatalf("Is(%q) = false", code)
	}
}

func TestCodedErrorsSurviveWrapping(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodedErrorsSurviveWrapping)
}

func testUntypedErrorsHideDetails(t *rapid.T) {
	raw := rapid.StringMatching(`/data/[a-z]{1,12}\.db: [a-z ]{1,40}`).Draw(t, "raw")
	err := fmt.Errorf("read note: %w", errors.New(raw))

	if got := CodeOf(err); got != Internal {
		t.Fatalf("CodeOf = %q", got)
	}
	if got := MessageOf(err); got != "internal error" {
		t.Fatalf("MessageOf leaked %q", got)
	}
	if Is(err, Internal) {
		t.Fatal("untyped error reported as coded")
	}
}

func TestUntypedErrorsHideDetails(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testUntypedErrorsHideDetails)
}

func TestNilAndEmptyErrors(t *testing.T) {
	t.Parallel()
	if CodeOf(nil) != Internal || MessageOf(nil) != string(Internal) {
		t.Fatal("nil error fallbacks changed")
	}
	var e *Error
	if e.Error() != "" || e.Unwrap() != nil {
		t.Fatal("nil *Error must be inert")
	}
	if got := (&Error{Code: NotFound}).Error(); got != "not_found" {
		t.Fatalf("bare code Error() = %q", got)
	}
	if got := CodeOf(&Error{Message: "x"}); got != Internal {
		t.Fatalf("empty code = %q", got)
	}
	if got := Newf(Rejected, "limit %d", 3000).Error(); got != "limit 3000" {
		t.Fatalf("Newf = %q", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()
	want := map[Code]int{
		InvalidArgument:    http.StatusBadRequest,
		PermissionDenied:   http.StatusForbidden,
		NotFound:           http.StatusNotFound,
		FailedPrecondition: http.StatusConflict,
		Rejected:           http.StatusUnprocessableEntity,
		ResourceExhausted:  http.StatusTooManyRequests,
		Canceled:           499,
		Unavailable:        http.StatusServiceUnavailable,
		Internal:           http.StatusInternalServerError,
		Code("unknown"):    http.StatusInternalServerError,
	}
	for code, status := range want {
		if got := HTTPStatus(code); got != status {
			t.Errorf("HTTPStatus(%q) = %d, want %d", code, got, status)
		}
	}
	if len(Codes) != len(want)-1 {
		t.Fatalf("Codes has %d entries", len(Codes))
	}
}
