// Package plugin discovers and runs exch-* extension binaries from PATH,
// the same way git dispatches to git-* subcommands.
package plugin

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

const prefix = "exch-"

// Find resolves a plugin name to the full path of its binary.
func Find(name string) (string, error) {
	path, err := exec.LookPath(prefix + name)
	if err != nil {
		return "", fmt.Errorf("plugin %q not found in PATH", prefix+name)
	}
	return path, nil
}

// Run executes a plugin, wiring it to the current process's stdio.
func Run(name string, args []string) error {
	path, err := Find(name)
	if err != nil {
		return err
	}

	cmd := exec.Command(path, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}

// List returns the names of all executable exch-* binaries on PATH,
// sorted, with the prefix stripped.
func List() []string {
	seen := make(map[string]struct{})

	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasPrefix(name, prefix) {
				continue
			}
			info, err := os.Stat(filepath.Join(dir, name))
			if err != nil || info.Mode()&0111 == 0 {
				continue
			}
			seen[strings.TrimPrefix(name, prefix)] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
