package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source lazily resolves a keystore passphrase from an environment variable,
// a secrets file, or by prompting the operator. The value is cached after the
// first successful retrieval so repeated calls reuse the same secret.
type Source struct {
	envVar string
	file   string
	label  string

	once  sync.Once
	value string
	err   error
}

// NewSource constructs a passphrase source that checks envVar before
// interactively prompting on the terminal. label names the keystore in
// prompts and errors.
func NewSource(envVar, label string) *Source {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "keystore"
	}
	return &Source{envVar: strings.TrimSpace(envVar), label: label}
}

// WithFile makes the source read the passphrase from path when the
// environment variable is unset.
func (s *Source) WithFile(path string) *Source {
	s.file = strings.TrimSpace(path)
	return s
}

// Get returns the cached passphrase or resolves it if this is the first call.
// Whitespace-only passphrases are rejected to avoid unprotected keystores.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	if s.file != "" {
		data, err := os.ReadFile(s.file)
		if err != nil {
			return "", fmt.Errorf("read %s passphrase file: %w", s.label, err)
		}
		value := strings.TrimRight(string(data), "\r\n")
		if strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("%s passphrase file %s is empty", s.label, s.file)
		}
		return value, nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		if s.envVar != "" {
			return "", fmt.Errorf("%s passphrase required; set %s or run interactively", s.label, s.envVar)
		}
		return "", fmt.Errorf("%s passphrase required and no terminal available", s.label)
	}

	fmt.Fprintf(os.Stderr, "Enter %s passphrase: ", s.label)
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}

	passphrase := string(bytes)
	if strings.TrimSpace(passphrase) == "" {
		return "", errors.New(s.label + " passphrase cannot be empty")
	}
	return passphrase, nil
}
