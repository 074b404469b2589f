package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/rs/zerolog"
)

// Activity actions recorded by the application.
const (
	ActionExtractionStarted   = "extraction started"
	ActionExtractionCompleted = "extraction completed"
	ActionExtractionCancelled = "extraction cancelled"
	ActionExportPerformed     = "export performed"
	ActionUploadPerformed     = "upload performed"
	ActionLedgerReset         = "ledger reset"
	ActionCellScanned         = "cell scanned"
)

// Activity records high-level user actions. Log never fails from the
// caller's point of view.
type Activity interface {
	Log(action string, files ...string)
}

// NopActivity discards every action.
type NopActivity struct{}

// Log implements Activity.
func (NopActivity) Log(string, ...string) {}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileActivity appends one JSON line per action to activity_<user>.log.
type FileActivity struct {
	mu   sync.Mutex
	path string
	file *os.File
	log  zerolog.Logger
}

// NewFileActivity opens (or creates) the activity log for user inside dir.
func NewFileActivity(dir, user string) (*FileActivity, error) {
	name := unsafeFileChars.ReplaceAllString(user, "_")
	if name == "" {
		name = "user"
	}
	path := filepath.Join(dir, "activity_"+name+".log")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("NewFileActivity: open %q: %w", path, err)
	}

	return &FileActivity{
		path: path,
		file: f,
		log:  zerolog.New(f).With().Timestamp().Str("user", user).Logger(),
	}, nil
}

// Log implements Activity.
func (a *FileActivity) Log(action string, files ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file == nil {
		return
	}
	ev := a.log.Info().Str("action", action)
	if len(files) > 0 {
		ev = ev.Strs("files", files)
	}
	ev.Msg("")
}

// Path returns the log file location.
func (a *FileActivity) Path() string {
	return a.path
}

// Close closes the log file. Later calls to Log are ignored.
func (a *FileActivity) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}
