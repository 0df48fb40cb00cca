// Command omogenexec-fixpermissions is the privileged helper that restores
// ownership and mode on a sandbox work directory between submissions. It is
// installed setuid-root and deliberately does nothing else: it resets a
// directory that a sandboxed command left owned by a sandbox user or marked
// immutable, outside the supervisor's process tree.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jsannemo/omogenexec/internal/sandbox"
)

// submissionsRoot is the fixed prefix every path argument is resolved
// against; the helper refuses to touch anything outside it.
const submissionsRoot = sandbox.RootPrefix + "/submissions"

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: %s <submission-id>", args[0])
	}

	target, err := resolveSubmissionPath(args[1])
	if err != nil {
		return err
	}

	owner := sandbox.SandboxUserPrefix + "0"
	if v := os.Getenv("OMOGENEXEC_FIX_OWNER"); v != "" {
		owner = v
	}
	ownerGroup := owner + ":" + sandbox.SandboxGroup

	steps := [][]string{
		{"chattr", "-i", "-R", target},
		{"chown", "-R", ownerGroup, target},
		{"chmod", "-R", "gu+wrx", target},
	}
	for _, step := range steps {
		cmd := exec.Command(step[0], step[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s: %w", strings.Join(step, " "), err)
		}
	}
	return nil
}

// resolveSubmissionPath canonicalises submissionsRoot+id and rejects the
// result unless it still lives under submissionsRoot, closing off a path
// like "../../etc" from escaping the fixed prefix.
func resolveSubmissionPath(id string) (string, error) {
	joined := filepath.Join(submissionsRoot, id)
	resolved, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if resolved != submissionsRoot && !strings.HasPrefix(resolved, submissionsRoot+"/") {
		return "", fmt.Errorf("%q escapes %s", id, submissionsRoot)
	}
	return resolved, nil
}
