package audit

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/chatseguro/chatseguro/internal/security"
	"github.com/chatseguro/chatseguro/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lineRe = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \| .{20} \| [0-9a-f]{64} \| +\d+ chars$`)

func TestAppendWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit_log.txt")
	a := NewLogger(path, true, testutil.TestLogger(t))

	assert.NoError(t, a.Append("maria", "hola", security.HashContent("hola")))
	assert.NoError(t, a.Append("jose", "que tal", security.HashContent("que tal")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	content := string(data)
	assert.Equal(t, 1, strings.Count(content, "AUDIT LOG - CHAT SEGURO"), "expected a single header block")

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	// header rule, title, rule, blank, two entries
	require.Len(t, lines, 6)
	assert.Regexp(t, lineRe, lines[4], "expected formatted audit line")
	assert.Regexp(t, lineRe, lines[5], "expected formatted audit line")
	assert.Contains(t, lines[4], "maria")
	assert.Contains(t, lines[5], "jose")
}

func TestAppendDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit_log.txt")
	a := NewLogger(path, false, testutil.TestLogger(t))

	a.Append("maria", "hola", security.HashContent("hola"))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "expected no audit file when auditing is disabled")
	assert.False(t, a.Enabled())
}

func TestAppendConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit_log.txt")
	a := NewLogger(path, true, testutil.TestLogger(t))

	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			a.Append("concurrente", "mensaje", security.HashContent("mensaje"))
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 4+writers, "expected header plus one line per writer")
	for _, line := range lines[4:] {
		assert.Regexp(t, lineRe, line, "expected every line intact, got %q", line)
	}
}

func TestAppendReportsWriteErrors(t *testing.T) {
	// point the logger at a directory so the open fails
	a := NewLogger(t.TempDir(), true, testutil.TestLogger(t))
	assert.Error(t, a.Append("maria", "hola", security.HashContent("hola")))
}
