package gemini

import (
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/shpitdev/engager-tracker/internal/enrich"
)

type tempNetErr struct{}

func (tempNetErr) Error() string   { return "temp net err" }
func (tempNetErr) Timeout() bool   { return false }
func (tempNetErr) Temporary() bool { return true }

func TestClassifyErr(t *testing.T) {
	tests := []struct {
		name          string
		in            error
		wantTransient bool
	}{
		{name: "nil", in: nil, wantTransient: false},
		{name: "api_429", in: genai.APIError{Code: 429}, wantTransient: true},
		{name: "api_503", in: genai.APIError{Code: 503}, wantTransient: true},
		{name: "api_401", in: genai.APIError{Code: 401}, wantTransient: false},
		{name: "net_temporary", in: tempNetErr{}, wantTransient: true},
		{name: "plain", in: errors.New("boom"), wantTransient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyErr(tt.in)
			var te *enrich.TransientError
			isTransient := errors.As(got, &te)
			if isTransient != tt.wantTransient {
				t.Fatalf("transient=%v want=%v (err=%T %v)", isTransient, tt.wantTransient, got, got)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	p := buildPrompt("https://www.linkedin.com/in/someone")
	if !strings.Contains(p, "https://www.linkedin.com/in/someone") {
		t.Fatalf("prompt missing the reference: %q", p)
	}
	if !strings.Contains(p, "found (boolean") {
		t.Fatalf("prompt missing the found contract: %q", p)
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(t.Context(), Config{Model: "gemini-2.5-flash"}); err == nil {
		t.Fatal("expected missing api key error")
	}
	if _, err := New(t.Context(), Config{APIKey: "k"}); err == nil {
		t.Fatal("expected missing model error")
	}
}
