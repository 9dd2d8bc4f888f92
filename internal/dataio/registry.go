package dataio

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func(*slog.Logger) Format)
)

// Register adds a format factory to the registry.
// Called by format implementations in their init() functions.
func Register(name string, factory func(*slog.Logger) Format) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = factory
}

// Get retrieves a format factory by name.
func Get(name string) (func(*slog.Logger) Format, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[strings.ToLower(name)]
	return f, ok
}

// NewFormat creates the format registered under fileType.
// The logger is passed to the format constructor (nil uses discard logger).
func NewFormat(fileType string, logger *slog.Logger) (Format, error) {
	if fileType == "" {
		return nil, fmt.Errorf("file_type not specified")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	factory, ok := Get(fileType)
	if !ok {
		return nil, &UnknownFormatError{
			Type:      fileType,
			Available: Formats(),
		}
	}
	return factory(logger), nil
}

// Formats returns all registered format names (sorted).
func Formats() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a format is registered.
func IsRegistered(name string) bool {
	_, ok := Get(name)
	return ok
}

// UnknownFormatError is returned when an unknown file_type is requested.
type UnknownFormatError struct {
	Type      string
	Available []string
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("unknown file_type %q\nAvailable file types: %v", e.Type, e.Available)
}

// IsFileFormat reports whether fileType reads and writes filesystem paths
// rather than database tables.
func IsFileFormat(fileType string) bool {
	f, err := NewFormat(fileType, nil)
	if err != nil {
		return false
	}
	_, ok := f.(*fileFormat)
	return ok
}

// Extension returns the part file extension of a file format.
func Extension(fileType string) (string, bool) {
	f, err := NewFormat(fileType, nil)
	if err != nil {
		return "", false
	}
	ff, ok := f.(*fileFormat)
	if !ok {
		return "", false
	}
	return ff.codec.Extension(), true
}
