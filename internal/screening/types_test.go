package screening

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateToken(t *testing.T) {
	valid := strings.Repeat("a", 64)
	if err := ValidateToken(valid); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if err := ValidateToken("  " + valid + "  "); err != nil {
		t.Fatalf("surrounding whitespace should be trimmed: %v", err)
	}

	invalid := []string{
		"",
		strings.Repeat("a", 31),
		strings.Repeat("a", 129),
		strings.Repeat("a", 20) + " " + strings.Repeat("b", 20),
		strings.Repeat("a", 20) + "\n" + strings.Repeat("b", 20),
	}
	for _, tok := range invalid {
		if err := ValidateToken(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ValidateToken(%q) = %v, want ErrInvalidToken", tok, err)
		}
	}
}
