// Package gitdetect reads the current branch and remote of the local
// repository by shelling out to git, the same way a developer would on the
// command line.
package gitdetect

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// CurrentBranch returns the checked-out branch name
func CurrentBranch() (string, error) {
	output, err := runGitCommand("git", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}

	branch := strings.TrimSpace(string(output))
	if branch == "" || branch == "HEAD" {
		return "", fmt.Errorf("could not determine current branch (detached HEAD?)")
	}

	return branch, nil
}

// RemoteURL returns the URL of the named remote (usually "origin")
func RemoteURL(remote string) (string, error) {
	output, err := runGitCommand("git", "remote", "get-url", remote)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(output)), nil
}

// DetectProjectPath resolves the namespaced project path (group/project)
// from the named remote of the repository in the current directory. An empty
// remote name falls back to "origin".
func DetectProjectPath(remote string) (string, error) {
	if remote == "" {
		remote = "origin"
	}

	remoteURL, err := RemoteURL(remote)
	if err != nil {
		return "", err
	}

	return ProjectPathFromRemote(remoteURL)
}

// scp-like syntax: git@gitlab.example.com:group/subgroup/project.git
var scpRemoteRe = regexp.MustCompile(`^[\w.-]+@([\w.-]+):(.+?)(?:\.git)?/?$`)

// ProjectPathFromRemote extracts the namespaced project path from a git
// remote URL. Supports scp-like SSH remotes, ssh:// and http(s):// forms.
func ProjectPathFromRemote(remoteURL string) (string, error) {
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteURL == "" {
		return "", fmt.Errorf("empty remote URL")
	}

	if m := scpRemoteRe.FindStringSubmatch(remoteURL); m != nil {
		return strings.Trim(m[2], "/"), nil
	}

	for _, scheme := range []string{"ssh://", "http://", "https://"} {
		if strings.HasPrefix(remoteURL, scheme) {
			rest := strings.TrimPrefix(remoteURL, scheme)
			// Drop user@ credentials if present
			if at := strings.LastIndex(rest, "@"); at >= 0 {
				rest = rest[at+1:]
			}
			slash := strings.Index(rest, "/")
			if slash < 0 || slash == len(rest)-1 {
				return "", fmt.Errorf("no project path in remote URL %s", remoteURL)
			}
			path := strings.Trim(rest[slash+1:], "/")
			path = strings.TrimSuffix(path, ".git")
			if path == "" {
				return "", fmt.Errorf("no project path in remote URL %s", remoteURL)
			}
			return path, nil
		}
	}

	return "", fmt.Errorf("unrecognized remote URL format: %s", remoteURL)
}

func runGitCommand(name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("git command failed: %s\nstderr: %s", err, string(exitErr.Stderr))
		}
		return nil, err
	}
	return output, nil
}
