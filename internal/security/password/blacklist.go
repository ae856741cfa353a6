package password

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Blacklist is a case-insensitive set of known-compromised or too-common
// passwords, loaded once at startup from the file named by
// password_policy.blacklist_path and consulted by ValidateNewPassword on
// every signup and password-reset confirmation. A nil *Blacklist (no path
// configured) matches nothing.
type Blacklist struct {
	mu   sync.RWMutex
	data map[string]struct{}
}

// LoadBlacklist reads one password per line, skipping blanks and
// "#"-prefixed comments. An empty path yields an always-empty blacklist
// rather than an error, so the feature is opt-in.
func LoadBlacklist(path string) (*Blacklist, error) {
	bl := &Blacklist{data: map[string]struct{}{}}
	if strings.TrimSpace(path) == "" {
		return bl, nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(strings.ToLower(sc.Text()))
		if s != "" && !strings.HasPrefix(s, "#") {
			bl.data[s] = struct{}{}
		}
	}
	return bl, sc.Err()
}

// Contains reports whether pwd (case-insensitively) is on the list. Safe
// to call on a nil *Blacklist.
func (b *Blacklist) Contains(pwd string) bool {
	if b == nil {
		return false
	}
	p := strings.ToLower(strings.TrimSpace(pwd))
	b.mu.RLock()
	_, ok := b.data[p]
	b.mu.RUnlock()
	return ok
}
