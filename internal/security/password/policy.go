package password

import (
	"fmt"
	"strings"
	"unicode"
)

// Policy son las reglas mínimas para passwords creados por herramientas (seed).
// El login no la aplica: solo compara contra el hash guardado.
type Policy struct {
	MinLength     int
	MaxLength     int
	RequireLetter bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPolicy acepta los passwords demo (admin123) y rechaza los triviales.
var DefaultPolicy = Policy{MinLength: 6, MaxLength: 255, RequireLetter: true, RequireDigit: true}

// Check devuelve los motivos de rechazo; vacío si el password cumple.
func (p Policy) Check(s string) (reasons []string) {
	n := len([]rune(s))
	if n < p.MinLength {
		reasons = append(reasons, "too_short")
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		reasons = append(reasons, "too_long")
	}
	var hasL, hasD, hasS bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			hasL = true
		case unicode.IsDigit(r):
			hasD = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasS = true
		}
	}
	if p.RequireLetter && !hasL {
		reasons = append(reasons, "missing_letter")
	}
	if p.RequireDigit && !hasD {
		reasons = append(reasons, "missing_digit")
	}
	if p.RequireSymbol && !hasS {
		reasons = append(reasons, "missing_symbol")
	}
	return reasons
}

// Validate es Check como error.
func (p Policy) Validate(s string) error {
	if r := p.Check(s); len(r) > 0 {
		return fmt.Errorf("password rejected: %s", strings.Join(r, ", "))
	}
	return nil
}
