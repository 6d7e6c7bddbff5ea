// Package browser owns the lifecycle of the single external browser session
// and the page adapter the workflows drive it through.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// State is the session manager lifecycle state.
type State int

const (
	StateAbsent State = iota
	StateAcquiring
	StateActive
)

// defaultUserAgent is a fixed, realistic client identity. Several remote
// checks degrade the interaction when the default automation UA is visible.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// maskAutomationScript suppresses the automation signals the remote pages
// probe for. Installed on every new document before site scripts run.
const maskAutomationScript = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
window.chrome = window.chrome || { runtime: {} };
Object.defineProperty(navigator, 'languages', {get: () => ['ja-JP', 'ja']});
`

// Session is a handle to one live browser bound to the dedicated profile
// directory. At most one Session exists per Manager; it is not persisted
// across restarts, but the on-disk profile carries authentication state.
type Session struct {
	browserCtx  context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// NewPage opens a fresh tab in the session's browser.
func (s *Session) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	if err := chromedp.Run(tabCtx, installMaskScript()); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &chromedpPage{ctx: tabCtx, cancel: tabCancel}, nil
}

// close tears the browser down, swallowing errors: teardown failure must
// never mask the workflow error that triggered it.
func (s *Session) close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

func installMaskScript() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := cdppage.AddScriptToEvaluateOnNewDocument(maskAutomationScript).Do(ctx)
		return err
	})
}

// Manager owns the single browser session bound to the dedicated profile
// directory. Acquiring a new session tears down any existing one first.
type Manager struct {
	profileDir string

	mu      sync.Mutex
	state   State
	session *Session

	// launch is swappable in tests.
	launch func(ctx context.Context, profileDir string) (*Session, error)
}

// NewManager returns a manager bound to profileDir. The directory is
// provisioned on first acquire.
func NewManager(profileDir string) *Manager {
	return &Manager{
		profileDir: profileDir,
		launch:     launchSession,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CheckConflict scans running processes for a browser already using the
// dedicated profile directory. The profile behaves like an exclusive lock at
// the OS level; two processes sharing it corrupt session state, so callers
// must check before acquiring.
func (m *Manager) CheckConflict(ctx context.Context) (bool, string) {
	return checkProfileConflict(ctx, m.profileDir)
}

// Acquire launches a fresh interactive session against the profile
// directory, tearing down any previous session first (best effort). Launch
// failure is fatal to the calling workflow and surfaced as-is.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		m.session.close()
		m.session = nil
	}
	m.state = StateAcquiring

	if m.profileDir == "" {
		m.state = StateAbsent
		return nil, errors.New("browser profile directory is not configured")
	}
	if err := os.MkdirAll(m.profileDir, 0o755); err != nil {
		m.state = StateAbsent
		return nil, fmt.Errorf("failed to provision profile directory: %w", err)
	}

	session, err := m.launch(ctx, m.profileDir)
	if err != nil {
		m.state = StateAbsent
		return nil, fmt.Errorf("failed to launch browser session: %w", err)
	}

	m.session = session
	m.state = StateActive
	log.Debug().Str("profileDir", m.profileDir).Msg("browser session acquired")
	return session, nil
}

// Release tears down the current session. Idempotent; swallows all errors.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		m.session.close()
		m.session = nil
		log.Debug().Msg("browser session released")
	}
	m.state = StateAbsent
}

func launchSession(ctx context.Context, profileDir string) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		// Interactive mode: the operator may need to solve a CAPTCHA or
		// log in manually.
		chromedp.Flag("headless", false),
		chromedp.Flag("start-maximized", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserDataDir(profileDir),
		chromedp.UserAgent(defaultUserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx, installMaskScript()); err != nil {
		cancel()
		allocCancel()
		return nil, err
	}

	return &Session{
		browserCtx:  browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}, nil
}
