// Package config resolves application paths and loads the settings file.
// The orchestration core only ever reads settings; nothing here writes them.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

const (
	AppName          = "relister"
	SettingsFileName = "settings.toml"
)

// Schedule holds the local wall-clock trigger times for the daily cadence,
// in "15:04" form.
type Schedule struct {
	Listing   string `toml:"listing"`
	Shipping  string `toml:"shipping"`
	Relisting string `toml:"relisting"`
}

// Settings is the operator-editable configuration. Carrier portal credentials
// deliberately do not appear here; they come from the process environment
// only (see the carrier package).
type Settings struct {
	GmailCredentialsPath    string   `toml:"gmail_credentials_path"`
	GmailTokenPath          string   `toml:"gmail_token_path"`
	EnableReplyNotification bool     `toml:"enable_reply_notification"`
	LedgerRetentionDays     int      `toml:"ledger_retention_days"`
	Schedule                Schedule `toml:"schedule"`
}

// Paths derives every directory the application uses from a single base.
type Paths struct {
	Base string
}

// DefaultBase returns the application home: $RELISTER_HOME if set, otherwise
// a directory under the user config dir.
func DefaultBase() (string, error) {
	if home := os.Getenv("RELISTER_HOME"); home != "" {
		return home, nil
	}
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(configBase, AppName), nil
}

func (p Paths) ConfigDir() string   { return filepath.Join(p.Base, "config") }
func (p Paths) DataDir() string     { return filepath.Join(p.Base, "data") }
func (p Paths) LogsDir() string     { return filepath.Join(p.Base, "logs") }
func (p Paths) ImagesDir() string   { return filepath.Join(p.DataDir(), "images") }
func (p Paths) HistoryDir() string  { return filepath.Join(p.DataDir(), "history") }
func (p Paths) ProfileDir() string  { return filepath.Join(p.DataDir(), "chrome_profile") }
func (p Paths) SettingsPath() string {
	return filepath.Join(p.ConfigDir(), SettingsFileName)
}
func (p Paths) LedgerPath() string {
	return filepath.Join(p.HistoryDir(), "shipped.json")
}

// EnsureDirectories creates every directory the application needs. The
// browser profile dir is excluded: the session manager provisions it itself
// so the conflict check can reason about its existence.
func (p Paths) EnsureDirectories() error {
	for _, dir := range []string{p.ConfigDir(), p.DataDir(), p.ImagesDir(), p.HistoryDir(), p.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func defaultSettings(p Paths) Settings {
	return Settings{
		GmailCredentialsPath: filepath.Join(p.ConfigDir(), "credentials.json"),
		GmailTokenPath:       filepath.Join(p.ConfigDir(), "token.json"),
		LedgerRetentionDays:  90,
		Schedule: Schedule{
			Listing:   "08:00",
			Shipping:  "12:00",
			Relisting: "20:00",
		},
	}
}

// Load reads the settings file under p, falling back to defaults for a
// missing file and for individual unset values.
func Load(p Paths) (Settings, error) {
	s := defaultSettings(p)

	data, err := os.ReadFile(p.SettingsPath())
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := toml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse settings: %w", err)
	}

	defaults := defaultSettings(p)
	if s.GmailCredentialsPath == "" {
		s.GmailCredentialsPath = defaults.GmailCredentialsPath
	}
	if s.GmailTokenPath == "" {
		s.GmailTokenPath = defaults.GmailTokenPath
	}
	if s.LedgerRetentionDays <= 0 {
		s.LedgerRetentionDays = defaults.LedgerRetentionDays
	}
	if s.Schedule.Listing == "" {
		s.Schedule.Listing = defaults.Schedule.Listing
	}
	if s.Schedule.Shipping == "" {
		s.Schedule.Shipping = defaults.Schedule.Shipping
	}
	if s.Schedule.Relisting == "" {
		s.Schedule.Relisting = defaults.Schedule.Relisting
	}
	return s, nil
}

// Validate checks that the mail credential file exists and looks like an
// OAuth client secrets file. Returns one message per problem.
func (s Settings) Validate() []string {
	var problems []string

	data, err := os.ReadFile(s.GmailCredentialsPath)
	if err != nil {
		problems = append(problems, fmt.Sprintf("gmail credentials file not readable: %s", s.GmailCredentialsPath))
		return problems
	}
	var creds map[string]json.RawMessage
	if err := json.Unmarshal(data, &creds); err != nil {
		problems = append(problems, "gmail credentials file is not valid JSON")
		return problems
	}
	if _, ok := creds["installed"]; !ok {
		if _, ok := creds["web"]; !ok {
			problems = append(problems, `gmail credentials file is missing the "installed" or "web" key`)
		}
	}
	return problems
}
