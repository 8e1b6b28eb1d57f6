package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// DatabaseName is the fixed filename of the workspace database.
const DatabaseName = "tape.db"

// DiscoverDatabase looks for .tape/tape.db in the current directory only.
// Returns the absolute path to the database file, or an error if not found.
//
// Only the current directory is checked, not parents: a desk nested inside
// another project's tree must not silently write signals into the outer
// workspace.
//
// The TAPE_DB_PATH environment variable takes precedence over discovery,
// which also gives tests isolation. Special values like ":memory:" pass
// through untouched.
func DiscoverDatabase() (string, error) {
	if dbPath := os.Getenv("TAPE_DB_PATH"); dbPath != "" {
		return dbPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	return discoverDatabaseInDir(dir)
}

// discoverDatabaseInDir checks for .tape/tape.db in the specified directory only.
func discoverDatabaseInDir(dir string) (string, error) {
	dbPath := filepath.Join(dir, ".tape", DatabaseName)
	if info, err := os.Stat(dbPath); err == nil && !info.IsDir() {
		absPath, err := filepath.Abs(dbPath)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		return absPath, nil
	}

	return "", fmt.Errorf(
		"no .tape/%s found in %s\n"+
			"  Run 'tape init' to set up a desk in this directory\n"+
			"  Or use --db flag to specify database path explicitly",
		DatabaseName, dir)
}

// GetWorkspaceRoot returns the workspace root directory for a given database path.
// The workspace root is the directory containing the .tape/ directory.
//
// Example:
//
//	dbPath: /home/user/mydesk/.tape/tape.db
//	returns: /home/user/mydesk
func GetWorkspaceRoot(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	dbDir := filepath.Dir(absPath)
	if filepath.Base(dbDir) != ".tape" {
		return "", fmt.Errorf(
			"database must be in a .tape/ directory, got: %s",
			dbPath)
	}

	return filepath.Dir(dbDir), nil
}

// InitWorkspace creates a new .tape directory for a desk. The database file
// itself is created on first connection. Returns the path to the database.
func InitWorkspace(projectDir string) (string, error) {
	if _, err := os.Stat(projectDir); os.IsNotExist(err) {
		return "", fmt.Errorf("directory does not exist: %s", projectDir)
	}

	tapeDir := filepath.Join(projectDir, ".tape")
	if err := os.MkdirAll(tapeDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create .tape directory: %w", err)
	}

	dbPath := filepath.Join(tapeDir, DatabaseName)
	if _, err := os.Stat(dbPath); err == nil {
		return "", fmt.Errorf("database already exists: %s", dbPath)
	}

	return dbPath, nil
}
