package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/steveyegge/tuneup/internal/storage/sqlite"
)

// ErrAgentRunning is returned when another live agent owns the database
var ErrAgentRunning = errors.New("another tuneup agent is already running")

// AgentLock records which agent process owns a database. One worker drains
// the job queue, so two agents must never serve the same file.
type AgentLock struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

func (l AgentLock) String() string {
	return fmt.Sprintf("PID %d on %s, started %s", l.PID, l.Hostname, l.StartedAt.Format(time.RFC3339))
}

// LockPath is the lock file that sits beside dbPath
func LockPath(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), ".agent-lock")
}

// AcquireAgentLock claims dbPath for this process and returns the lock file
// to release on shutdown. A lock left by a dead agent is taken over; one held
// by a live agent fails with ErrAgentRunning. In-memory databases are private
// to the process, so they get no lock and an empty path.
func AcquireAgentLock(dbPath, version string) (string, error) {
	if dbPath == sqlite.MemoryPath {
		return "", nil
	}

	lockPath := LockPath(dbPath)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}

	if holder, ok := readAgentLock(lockPath); ok && holder.PID != os.Getpid() && holderAlive(holder) {
		return "", fmt.Errorf("%w (%s)", ErrAgentRunning, holder)
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	data, err := json.MarshalIndent(AgentLock{
		Holder:    "tuneup-agent",
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		Version:   version,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode agent lock: %w", err)
	}
	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write agent lock %s: %w", lockPath, err)
	}
	return lockPath, nil
}

// ReleaseAgentLock gives up the database. An empty or missing path is fine.
func ReleaseAgentLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}
	if err := os.Remove(lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to release agent lock %s: %w", lockPath, err)
	}
	return nil
}

// readAgentLock loads an existing lock. Unreadable or corrupt files count as
// no lock.
func readAgentLock(lockPath string) (AgentLock, bool) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return AgentLock{}, false
	}
	var holder AgentLock
	if err := json.Unmarshal(data, &holder); err != nil {
		return AgentLock{}, false
	}
	return holder, true
}

// holderAlive sends signal 0 to the lock holder. Agents on other hosts
// cannot be signalled and are treated as alive.
func holderAlive(holder AgentLock) bool {
	host, err := os.Hostname()
	if err != nil || !strings.EqualFold(holder.Hostname, host) {
		return true
	}
	proc, err := os.FindProcess(holder.PID)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	// EPERM: alive, owned by another user
	return err == nil || errors.Is(err, syscall.EPERM)
}
