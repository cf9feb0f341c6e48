package internal

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// SecretPrefix marks a 1Password secret reference
const SecretPrefix = "op://"

var (
	// CommandContext creates the op command; tests override it
	CommandContext = exec.CommandContext
	// LookPath locates the op binary; tests override it
	LookPath = exec.LookPath
)

// ResolveSecretReference resolves a 1Password secret reference (e.g. op://vault/item/field).
// It reports whether value was a secret reference.
func ResolveSecretReference(ctx context.Context, value string) (string, bool, error) {
	if !strings.HasPrefix(value, SecretPrefix) {
		return value, false, nil
	}

	if _, err := LookPath("op"); err != nil {
		return "", true, fmt.Errorf("1Password CLI (op) not found in PATH: %w", err)
	}

	cmd := CommandContext(ctx, "op", "read", "--no-newline", value)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", true, fmt.Errorf("failed to read secret from 1Password: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", true, fmt.Errorf("failed to read secret from 1Password: %w", err)
	}

	return strings.TrimSpace(string(output)), true, nil
}

// ResolveEnv returns env with every secret reference replaced by its value.
// The input map is not modified.
func ResolveEnv(ctx context.Context, env map[string]string) (map[string]string, error) {
	if len(env) == 0 {
		return env, nil
	}

	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	resolved := make(map[string]string, len(env))
	for _, key := range keys {
		value, _, err := ResolveSecretReference(ctx, env[key])
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", key, err)
		}
		resolved[key] = value
	}
	return resolved, nil
}

// EnvList renders env as sorted KEY=VALUE pairs suitable for exec.Cmd.Env
func EnvList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for key, value := range env {
		list = append(list, key+"="+value)
	}
	sort.Strings(list)
	return list
}
