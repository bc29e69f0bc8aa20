package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"xscraper/pkg/logger"
	"xscraper/pkg/timeline"
)

// Session is the resumable state of one account's fetch. It is written
// after every batch so a crash, timeout or user stop never loses
// already-merged data. A completed session is never resumed.
type Session struct {
	AccountKey      string               `json:"account_key"`
	Cursor          string               `json:"cursor,omitempty"`
	Entries         []timeline.Entry     `json:"entries"`
	AccountInfo     timeline.AccountInfo `json:"account_info"`
	Completed       bool                 `json:"completed"`
	AuthToken       string               `json:"auth_token,omitempty"`
	MediaType       string               `json:"media_type,omitempty"`
	TimelineKind    string               `json:"timeline_kind,omitempty"`
	IncludeRetweets bool                 `json:"include_retweets"`
	BatchSize       int                  `json:"batch_size"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	Version         int                  `json:"version"`
}

// Resumable reports whether the session carries anything worth
// continuing from.
func (s *Session) Resumable() bool {
	return s != nil && !s.Completed && s.Cursor != ""
}

// Manager handles checkpoint persistence for a single account key.
type Manager struct {
	sessionPath string
	cursorPath  string
	logger      logger.Logger
}

// NewManager creates a checkpoint manager for the given account key.
func NewManager(accountKey string) (*Manager, error) {
	dataDir, err := DataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}

	sessionsDir := filepath.Join(dataDir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	name := sanitizeKey(accountKey)
	return &Manager{
		sessionPath: filepath.Join(sessionsDir, name+".session.json"),
		cursorPath:  filepath.Join(sessionsDir, name+".cursor"),
		logger:      logger.GetLogger(),
	}, nil
}

// sanitizeKey keeps account keys filesystem-safe. Handles are already
// safe; this guards against keys pasted as URLs.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, key)
}

// Save writes the full session to disk atomically.
func (m *Manager) Save(session *Session) error {
	session.UpdatedAt = time.Now()
	if session.Version == 0 {
		session.Version = 1
	}

	tempPath := m.sessionPath + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temporary session file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(session); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync session file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tempPath, m.sessionPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	m.logger.DebugWithFields("Session checkpoint saved", map[string]interface{}{
		"account_key": session.AccountKey,
		"entries":     len(session.Entries),
		"cursor":      session.Cursor,
		"completed":   session.Completed,
	})

	return nil
}

// Load reads the stored session. It returns (nil, nil) when no
// checkpoint exists.
func (m *Manager) Load() (*Session, error) {
	file, err := os.Open(m.sessionPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	var session Session
	if err := json.NewDecoder(file).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	m.logger.InfoWithFields("Session checkpoint loaded", map[string]interface{}{
		"account_key": session.AccountKey,
		"entries":     len(session.Entries),
		"cursor":      session.Cursor,
		"updated_at":  session.UpdatedAt,
	})

	return &session, nil
}

// Clear removes the session checkpoint and the cursor slot.
func (m *Manager) Clear() error {
	if err := os.Remove(m.sessionPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session checkpoint: %w", err)
	}
	if err := os.Remove(m.cursorPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cursor slot: %w", err)
	}
	m.logger.Debug("Session checkpoint cleared")
	return nil
}

// Exists checks if a session checkpoint file exists.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.sessionPath)
	return err == nil
}

// SaveCursor writes just the continuation token. It is much cheaper
// than saving the whole session and is written every batch by the
// scheduler's bookkeeping.
func (m *Manager) SaveCursor(cursor string) error {
	tempPath := m.cursorPath + ".tmp"
	if err := os.WriteFile(tempPath, []byte(cursor), 0600); err != nil {
		return fmt.Errorf("failed to write cursor slot: %w", err)
	}
	if err := os.Rename(tempPath, m.cursorPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace cursor slot: %w", err)
	}
	return nil
}

// LoadCursor reads the lightweight cursor slot. A missing slot returns
// an empty cursor, not an error.
func (m *Manager) LoadCursor() (string, error) {
	data, err := os.ReadFile(m.cursorPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read cursor slot: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// DataDirectory returns the per-user data directory for the current OS.
func DataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "xscraper")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "xscraper")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "xscraper")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "xscraper")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
