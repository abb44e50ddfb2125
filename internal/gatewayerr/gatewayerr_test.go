package gatewayerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessageFormatting(t *testing.T) {
	err := New(KindProcessing, "llm", errors.New("timeout"))
	if got, want := err.Error(), "processing[llm]: timeout"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	noStage := New(KindProtocol, "", errors.New("bad frame"))
	if got, want := noStage.Error(), "protocol: bad frame"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("dial refused")
	err := New(KindInitialization, "asr", cause)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is should find the wrapped cause")
	}
}

func TestIs(t *testing.T) {
	err := Processf("tts", "synth failed: %s", "busy")

	if !Is(err, KindProcessing) {
		t.Errorf("Is(err, KindProcessing) = false, want true")
	}
	if Is(err, KindProtocol) {
		t.Errorf("Is(err, KindProtocol) = true, want false")
	}
	if Is(fmt.Errorf("plain error"), KindProcessing) {
		t.Errorf("Is on a non-gateway error should be false")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindInitialization: "initialization",
		KindProcessing:     "processing",
		KindProtocol:       "protocol",
		Kind(99):           "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
