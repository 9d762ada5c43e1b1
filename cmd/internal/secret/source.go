package secret

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// MinLength is the shortest HMAC secret accepted for signing API tokens.
const MinLength = 32

// Source resolves the API signing secret from a configured value, an
// environment variable or an interactive prompt, in that order. The first
// successful result is cached.
type Source struct {
	configured string
	envVar     string
	lookupEnv  func(string) (string, bool)
	stdin      *os.File
	prompt     io.Writer

	once  sync.Once
	value string
	err   error
}

// NewSource builds a source that prefers configured, then envVar.
func NewSource(configured, envVar string) *Source {
	return &Source{
		configured: strings.TrimSpace(configured),
		envVar:     strings.TrimSpace(envVar),
		lookupEnv:  os.LookupEnv,
		stdin:      os.Stdin,
		prompt:     os.Stderr,
	}
}

// Get returns the resolved secret.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
		if s.err == nil && len(s.value) < MinLength {
			s.value, s.err = "", fmt.Errorf("signing secret must be at least %d bytes", MinLength)
		}
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.configured != "" {
		return s.configured, nil
	}
	if s.envVar != "" {
		if value, ok := s.lookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return strings.TrimSpace(value), nil
		}
	}
	if s.stdin == nil || !term.IsTerminal(int(s.stdin.Fd())) {
		if s.envVar != "" {
			return "", fmt.Errorf("signing secret required; set %s or run interactively", s.envVar)
		}
		return "", errors.New("signing secret required and no terminal available")
	}

	fmt.Fprint(s.prompt, "Enter API signing secret: ")
	raw, err := term.ReadPassword(int(s.stdin.Fd()))
	fmt.Fprintln(s.prompt)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	value := strings.TrimSpace(string(raw))
	if value == "" {
		return "", errors.New("signing secret cannot be empty")
	}
	return value, nil
}

// Lookup resolves the secret without prompting. ok is false when neither the
// configured value nor the environment variable is set.
func (s *Source) Lookup() (value string, ok bool, err error) {
	if s.configured == "" {
		if s.envVar == "" {
			return "", false, nil
		}
		if _, set := s.lookupEnv(s.envVar); !set {
			return "", false, nil
		}
	}
	s.stdin = nil
	value, err = s.Get()
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
