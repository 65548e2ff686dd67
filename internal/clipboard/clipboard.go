// Package clipboard moves formulas through a clipboard as a private payload
// with a plain-text fallback.
package clipboard

import (
	"slices"
	"sync"

	"github.com/atotto/clipboard"
)

// Clipboard data types.
const (
	MIMEFormula = "application/x-formula-node+html"
	MIMEHTML    = "text/html"
	MIMEText    = "text/plain"
)

// Clipboard is a typed data store shared with other applications.
type Clipboard interface {
	Clear() error
	SetData(mime, data string) error
	GetData(mime string) (string, bool)
	Types() []string
}

// MemoryClipboard is a process-local Clipboard.
type MemoryClipboard struct {
	mu    sync.Mutex
	data  map[string]string
	types []string
}

// NewMemory returns an empty MemoryClipboard.
func NewMemory() *MemoryClipboard {
	return &MemoryClipboard{data: make(map[string]string)}
}

func (m *MemoryClipboard) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.data)
	m.types = m.types[:0]
	return nil
}

func (m *MemoryClipboard) SetData(mime, data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[mime]; !ok {
		m.types = append(m.types, mime)
	}
	m.data[mime] = data
	return nil
}

func (m *MemoryClipboard) GetData(mime string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[mime]
	return v, ok
}

func (m *MemoryClipboard) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.types)
}

// SystemClipboard writes plain text to the operating system clipboard and
// keeps the other types in process memory.
type SystemClipboard struct {
	mem *MemoryClipboard
}

// NewSystem returns a SystemClipboard.
func NewSystem() *SystemClipboard {
	return &SystemClipboard{mem: NewMemory()}
}

// Supported reports whether an OS clipboard is reachable.
func (s *SystemClipboard) Supported() bool {
	return !clipboard.Unsupported
}

func (s *SystemClipboard) Clear() error {
	return s.mem.Clear()
}

func (s *SystemClipboard) SetData(mime, data string) error {
	if mime == MIMEText && s.Supported() {
		if err := clipboard.WriteAll(data); err != nil {
			return err
		}
	}
	return s.mem.SetData(mime, data)
}

// GetData reads text/plain from the OS clipboard so that text copied by other
// applications is visible.
func (s *SystemClipboard) GetData(mime string) (string, bool) {
	if mime == MIMEText && s.Supported() {
		if text, err := clipboard.ReadAll(); err == nil {
			return text, true
		}
	}
	return s.mem.GetData(mime)
}

func (s *SystemClipboard) Types() []string {
	types := s.mem.Types()
	if s.Supported() && !slices.Contains(types, MIMEText) {
		types = append(types, MIMEText)
	}
	return types
}
