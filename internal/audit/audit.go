package audit

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const timestampLayout = "2006-01-02 15:04:05"

// Logger appends one line per audited event to a process-wide
// append-only file. Writers are serialized so concurrent message
// handlers never interleave lines.
type Logger struct {
	mu      sync.Mutex
	path    string
	enabled bool
	log     *log.Logger
}

func NewLogger(path string, enabled bool, l *log.Logger) *Logger {
	return &Logger{
		path:    path,
		enabled: enabled,
		log:     l,
	}
}

func (a *Logger) Enabled() bool {
	return a.enabled
}

// Append writes one audit line for user, the content's hash and its
// length. A header block is written once, when the file is first
// created. Failures are logged and returned so callers can count them,
// but auditing must never break the message path.
func (a *Logger) Append(user, content, hash string) error {
	if !a.enabled {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	_, statErr := os.Stat(a.path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		a.log.Println("audit: open log:", err)
		return err
	}
	defer f.Close()

	if isNew {
		if _, err := f.WriteString(header()); err != nil {
			a.log.Println("audit: write header:", err)
			return err
		}
	}

	line := fmt.Sprintf("[%s] | %-20s | %s | %5d chars\n",
		time.Now().Format(timestampLayout), user, hash, utf8.RuneCountInString(content))

	if _, err := f.WriteString(line); err != nil {
		a.log.Println("audit: write entry:", err)
		return err
	}

	return nil
}

func header() string {
	rule := strings.Repeat("=", 120)
	return rule + "\n" + "AUDIT LOG - CHAT SEGURO\n" + rule + "\n\n"
}
