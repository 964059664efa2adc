package main

import "os"

// commitHash is declared in serve.go and reused by the version command and
// system.version's VersionInfo.

// buildInstallMode reports how this binary thinks it was installed, used by
// both the version command and system.version. Detection is best-effort:
// a tarball install has no .git directory alongside the binary, while a
// source checkout does.
func buildInstallMode() string {
	if _, err := os.Stat(".git"); err == nil {
		return "source"
	}
	return "tarball"
}
