package renderer

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Resolve returns the absolute path of the first runnable candidate. Candidates
// containing a path separator are checked on disk; bare names are looked up in PATH.
func Resolve(candidates ...string) (string, error) {
	var tried []string
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		tried = append(tried, c)
		path, err := exec.LookPath(c)
		if err != nil {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		return path, nil
	}
	if len(tried) == 0 {
		return "", &Error{Kind: KindLaunchError, Message: "no renderer command configured"}
	}
	return "", &Error{
		Kind:    KindLaunchError,
		Message: fmt.Sprintf("no runnable renderer command among %s", strings.Join(tried, ", ")),
		Err:     exec.ErrNotFound,
	}
}

// SplitCandidates splits a comma separated command setting into candidates.
func SplitCandidates(setting string) []string {
	parts := strings.Split(setting, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func checkScript(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return errors.New("not a regular file")
	}
	return nil
}
