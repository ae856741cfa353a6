package password

import "unicode"

// Policy is the minimum-strength rule a new or replacement password must
// satisfy before it is ever hashed, enforced by auth.Signup and
// passwordreset.Manager.Confirm.
type Policy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// Validate reports every rule s fails, so the caller can surface all of
// them in one response instead of making the user retry rule-by-rule.
func (p Policy) Validate(s string) (ok bool, reasons []string) {
	if len([]rune(s)) < p.MinLength {
		reasons = append(reasons, "too_short")
	}
	var hasU, hasL, hasD, hasS bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasU = true
		case unicode.IsLower(r):
			hasL = true
		case unicode.IsDigit(r):
			hasD = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasS = true
		}
	}
	if p.RequireUpper && !hasU {
		reasons = append(reasons, "missing_upper")
	}
	if p.RequireLower && !hasL {
		reasons = append(reasons, "missing_lower")
	}
	if p.RequireDigit && !hasD {
		reasons = append(reasons, "missing_digit")
	}
	if p.RequireSymbol && !hasS {
		reasons = append(reasons, "missing_symbol")
	}
	return len(reasons) == 0, reasons
}

// ValidateNewPassword runs the strength policy and, if given a non-nil
// blacklist, the compromised/common-password check, returning every
// failure reason so Signup and password-reset confirmation can reject a
// weak or known-leaked password with one combined error.
func ValidateNewPassword(policy Policy, blacklist *Blacklist, pwd string) []string {
	_, reasons := policy.Validate(pwd)
	if blacklist.Contains(pwd) {
		reasons = append(reasons, "blacklisted")
	}
	return reasons
}
