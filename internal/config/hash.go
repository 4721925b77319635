package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
)

// ComputeHash computes the BLAKE3 content hash of a config file. The daemon
// records the hash at startup so drift between the file on disk and the
// running configuration is visible through debug-status.
func ComputeHash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return hashBytes(data), nil
}

// VerifyHash verifies a file against an expected BLAKE3 hash.
func VerifyHash(filePath, expectedHash string) error {
	actual, err := ComputeHash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}
	if actual != expectedHash {
		return fmt.Errorf("config hash mismatch: expected %s, got %s", expectedHash, actual)
	}
	return nil
}

func hashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
