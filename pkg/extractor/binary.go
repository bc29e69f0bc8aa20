package extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"xscraper/pkg/checkpoint"
	errs "xscraper/pkg/errors"
)

func executableName() string {
	if runtime.GOOS == "windows" {
		return "extractor.exe"
	}
	return "extractor"
}

// BinaryPath returns where the managed extractor binary lives, inside
// the same data directory as checkpoints.
func BinaryPath() (string, error) {
	dir, err := checkpoint.DataDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, executableName()), nil
}

func hashFilePath() (string, error) {
	dir, err := checkpoint.DataDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "extractor.sha256"), nil
}

func hashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// InstallBinary writes the extractor binary into the data directory
// and records its hash. An already-installed binary with a matching
// hash is left alone; a stale one is replaced.
func InstallBinary(data []byte) (string, error) {
	exePath, err := BinaryPath()
	if err != nil {
		return "", err
	}
	hashPath, err := hashFilePath()
	if err != nil {
		return "", err
	}

	want := hashOf(data)
	if _, err := os.Stat(exePath); err == nil {
		if stored, err := os.ReadFile(hashPath); err == nil && string(stored) == want {
			return exePath, nil
		}
		os.Remove(exePath)
	}

	if err := os.WriteFile(exePath, data, 0755); err != nil {
		return "", errs.New(errs.ErrorTypeLocalIO,
			fmt.Sprintf("failed to write extractor binary: %v", err), "")
	}
	if err := os.WriteFile(hashPath, []byte(want), 0644); err != nil {
		// Binary still works; next install just cannot skip the write.
		return exePath, nil
	}
	return exePath, nil
}

// ResolveBinary finds a usable extractor binary: an explicit override
// first, then the managed copy in the data directory, then PATH.
func ResolveBinary(override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", errs.New(errs.ErrorTypeLocalIO,
				fmt.Sprintf("extractor binary not found at %s", override), "")
		}
		return override, nil
	}

	if managed, err := BinaryPath(); err == nil {
		if _, err := os.Stat(managed); err == nil {
			return managed, nil
		}
	}

	if found, err := exec.LookPath(executableName()); err == nil {
		return found, nil
	}

	return "", errs.New(errs.ErrorTypeLocalIO,
		"extractor binary not found",
		"Install it into the data directory or put 'extractor' on PATH")
}
