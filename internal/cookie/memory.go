package cookie

import "sync"

// MemoryJar is an in-process jar. It counts operations so callers can check
// how often the backend was touched, and can be told to fail.
type MemoryJar struct {
	mu      sync.Mutex
	values  map[string]string
	options map[string]Options

	Gets    int
	Sets    int
	Removes int

	// Fail, when non-nil, is returned by every operation
	Fail error
}

// NewMemoryJar returns an empty jar
func NewMemoryJar() *MemoryJar {
	return &MemoryJar{
		values:  make(map[string]string),
		options: make(map[string]Options),
	}
}

func (m *MemoryJar) Get(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	if m.Fail != nil {
		return "", m.Fail
	}
	v, ok := m.values[name]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryJar) Set(name, value string, opts Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sets++
	if m.Fail != nil {
		return m.Fail
	}
	m.values[name] = value
	m.options[name] = opts
	return nil
}

func (m *MemoryJar) Remove(name, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Removes++
	if m.Fail != nil {
		return m.Fail
	}
	if _, ok := m.values[name]; !ok {
		return ErrNotFound
	}
	delete(m.values, name)
	delete(m.options, name)
	return nil
}

// Peek returns the stored value without counting as a read
func (m *MemoryJar) Peek(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	return v, ok
}

// OptionsFor returns the options of the last write to name
func (m *MemoryJar) OptionsFor(name string) Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.options[name]
}

// ResetCounts zeroes the operation counters
func (m *MemoryJar) ResetCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets, m.Sets, m.Removes = 0, 0, 0
}
