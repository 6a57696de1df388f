package display

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinner_InertWithoutColors(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner(&buf, NewColorSystem(&buf, ColorNever, DarkColorTheme()), "restoring")

	s.Start()
	assert.False(t, s.Active())
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, s.Stop(), 5*time.Millisecond)
	assert.Empty(t, buf.String())
}

func TestSpinner_Animates(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner(&buf, NewColorSystem(&buf, ColorAlways, DarkColorTheme()), "dumping CHU-Nord")
	s.delay = time.Millisecond

	s.Start()
	assert.True(t, s.Active())
	assert.Eventually(t, func() bool {
		return bytes.Contains([]byte(buf.String()), []byte("dumping CHU-Nord"))
	}, time.Second, 2*time.Millisecond)

	s.Stop()
	assert.False(t, s.Active())
	assert.Contains(t, buf.String(), "\r\033[K")

	// a second Stop is a no-op
	s.Stop()
}
