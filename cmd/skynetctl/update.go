package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"
)

// updateMode is how this binary was installed, which determines how
// self-update proceeds: a source checkout re-pulls and rebuilds, a
// tarball install fetches + verifies + swaps the binary in place, and a
// container install can't replace itself — it just reports the newer tag.
type updateMode int

const (
	updateModeSource updateMode = iota
	updateModeTarball
	updateModeDocker
)

func detectUpdateMode() updateMode {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return updateModeDocker
	}
	if _, err := os.Stat(".git"); err == nil {
		if _, err := exec.LookPath("git"); err == nil {
			return updateModeSource
		}
	}
	return updateModeTarball
}

func updateCmd() *cobra.Command {
	var (
		checkOnly bool
		yes       bool
		rollback  bool
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Check for or apply a self-update",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runUpdate(checkOnly, yes, rollback))
		},
	}
	cmd.Flags().BoolVar(&checkOnly, "check", false, "only check whether an update is available")
	cmd.Flags().BoolVar(&yes, "yes", false, "apply the update without an interactive prompt")
	cmd.Flags().BoolVar(&rollback, "rollback", false, "restore the previously installed binary")
	return cmd
}

// runUpdate drives the self-update state machine and returns the process
// exit code: 0 success (including "already up to date"), 1 unrecoverable
// error, 2 configuration error (e.g. --rollback with nothing to roll back
// to).
func runUpdate(checkOnly, yes, rollback bool) int {
	mode := detectUpdateMode()

	if rollback {
		return runRollback(mode)
	}

	latest, err := fetchLatestVersion()
	if err != nil {
		fmt.Fprintln(os.Stderr, "update: failed to check latest version:", err)
		return 1
	}
	if latest == Version {
		fmt.Println("skynetctl is already up to date:", Version)
		return 0
	}
	fmt.Printf("update available: %s -> %s\n", Version, latest)
	if checkOnly {
		return 0
	}
	if !yes {
		fmt.Print("Apply update now? [y/N] ")
		var resp string
		fmt.Scanln(&resp)
		if resp != "y" && resp != "Y" {
			fmt.Println("update cancelled")
			return 0
		}
	}

	switch mode {
	case updateModeDocker:
		fmt.Println("running inside a container: pull the new image tag and recreate the container instead of updating in place")
		return 0
	case updateModeSource:
		return applySourceUpdate()
	default:
		return applyTarballUpdate(latest)
	}
}

func applySourceUpdate() int {
	pull := exec.Command("git", "pull", "--ff-only")
	pull.Stdout, pull.Stderr = os.Stdout, os.Stderr
	if err := pull.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "update: git pull failed:", err)
		return 1
	}
	build := exec.Command("go", "build", "-o", "skynetctl", "./cmd/skynetctl")
	build.Stdout, build.Stderr = os.Stdout, os.Stderr
	if err := build.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "update: go build failed:", err)
		return 1
	}
	fmt.Println("update applied, rebuilt ./skynetctl")
	return 0
}

// applyTarballUpdate downloads the release artifact for this platform,
// verifies its SHA-256 against the published checksum file, and swaps it in
// for the currently running binary: the previous binary is renamed to a
// .bak rollback target, then the new one is written at the original path.
// The swap is two steps, not a single atomic rename.
func applyTarballUpdate(version string) int {
	self, err := os.Executable()
	if err != nil {
		fmt.Fprintln(os.Stderr, "update: cannot locate running binary:", err)
		return 1
	}

	artifactURL := releaseArtifactURL(version)
	checksumURL := artifactURL + ".sha256"

	data, err := httpGetBytes(artifactURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "update: download failed:", err)
		return 1
	}
	wantSum, err := httpGetBytes(checksumURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "update: checksum download failed:", err)
		return 1
	}

	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	want := firstToken(string(wantSum))
	if got != want {
		fmt.Fprintf(os.Stderr, "update: checksum mismatch: got %s want %s\n", got, want)
		return 1
	}

	backup := self + ".bak"
	if err := os.Rename(self, backup); err != nil {
		fmt.Fprintln(os.Stderr, "update: failed to back up current binary:", err)
		return 1
	}
	if err := os.WriteFile(self, data, 0o755); err != nil {
		os.Rename(backup, self)
		fmt.Fprintln(os.Stderr, "update: failed to write new binary:", err)
		return 1
	}
	fmt.Println("update applied; previous binary saved as", backup)
	return 0
}

func runRollback(mode updateMode) int {
	if mode == updateModeSource {
		fmt.Fprintln(os.Stderr, "update: --rollback is only meaningful for a tarball install; use git to revert a source checkout")
		return 2
	}
	self, err := os.Executable()
	if err != nil {
		fmt.Fprintln(os.Stderr, "update: cannot locate running binary:", err)
		return 1
	}
	backup := self + ".bak"
	if _, err := os.Stat(backup); err != nil {
		fmt.Fprintln(os.Stderr, "update: no backup binary found at", backup)
		return 2
	}
	if err := os.Rename(backup, self); err != nil {
		fmt.Fprintln(os.Stderr, "update: rollback failed:", err)
		return 1
	}
	fmt.Println("rolled back to the previous binary")
	return 0
}

func releaseArtifactURL(version string) string {
	return fmt.Sprintf("https://github.com/skynet-run/skynet/releases/download/%s/skynetctl-%s-%s", version, runtime.GOOS, runtime.GOARCH)
}

func fetchLatestVersion() (string, error) {
	body, err := httpGetBytes("https://github.com/skynet-run/skynet/releases/latest/download/VERSION")
	if err != nil {
		return "", err
	}
	return firstToken(string(body)), nil
}

func httpGetBytes(url string) ([]byte, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

func firstToken(s string) string {
	for i, r := range s {
		if r == ' ' || r == '\n' || r == '\t' {
			return s[:i]
		}
	}
	return s
}
