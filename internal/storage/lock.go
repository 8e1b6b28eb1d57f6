package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ChatLock is the lock file an interactive session writes to claim exclusive
// write access to the workspace database. The transcript is single-writer;
// the lock extends that rule across processes so two concurrent chats cannot
// interleave checkpoints for the same sessions.
type ChatLock struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

// AcquireChatLock creates the lock file in the .tape directory.
// Returns the lock file path for cleanup on shutdown.
func AcquireChatLock(dbPath, version string) (lockPath string, err error) {
	workspaceRoot, err := GetWorkspaceRoot(dbPath)
	if err != nil {
		return "", fmt.Errorf("invalid database path: %w", err)
	}

	lockPath = filepath.Join(workspaceRoot, ".tape", ".chat-lock")

	// Check for existing lock
	if data, err := os.ReadFile(lockPath); err == nil {
		var existingLock ChatLock
		if json.Unmarshal(data, &existingLock) == nil {
			// Check if stale (process no longer exists)
			if isProcessAlive(existingLock.PID, existingLock.Hostname) {
				return "", fmt.Errorf("another tape chat is already running (PID %d on %s, started %s)",
					existingLock.PID, existingLock.Hostname, existingLock.StartedAt.Format(time.RFC3339))
			}
			// Stale lock - will overwrite
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	lock := ChatLock{
		Holder:    "tape-chat",
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		Version:   version,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}

	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create chat lock: %w", err)
	}

	return lockPath, nil
}

// ReleaseChatLock removes the lock file.
// Should be called on shutdown (use defer).
func ReleaseChatLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove chat lock: %w", err)
	}

	return nil
}

// isProcessAlive checks if a process with the given PID exists on the given hostname.
// Returns true if the process is alive, false otherwise.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		// Can't check hostname, assume remote/alive
		return true
	}

	if !strings.EqualFold(hostname, currentHost) {
		// Remote host - can't check, assume alive
		return true
	}

	// Check if PID exists on localhost (Unix: kill -0)
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}

	// EPERM means the process exists but belongs to someone else.
	// If we can't verify, assume alive.
	if err == syscall.EPERM {
		return true
	}

	return false
}
