package dialect

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	dialectsMu sync.RWMutex
	dialects   = make(map[string]Dialect)
)

// UnknownDialectError reports a lookup for a dialect nobody registered.
type UnknownDialectError struct {
	Name      string
	Available []string
}

func (e *UnknownDialectError) Error() string {
	return fmt.Sprintf("unknown dialect %q; available: %s",
		e.Name, strings.Join(e.Available, ", "))
}

// Register installs a dialect in the global registry. Backends call this
// from their init(); registering the same name twice panics, since that is
// always a wiring bug.
func Register(d Dialect) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	name := strings.ToLower(d.Name())
	if _, dup := dialects[name]; dup {
		panic(fmt.Sprintf("dialect: duplicate registration of %q", name))
	}
	dialects[name] = d
}

// Get returns a registered dialect by name, case-insensitively.
func Get(name string) (Dialect, error) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	d, ok := dialects[strings.ToLower(name)]
	if !ok {
		return nil, &UnknownDialectError{Name: name, Available: namesLocked()}
	}
	return d, nil
}

// List returns all registered dialect names, sorted.
func List() []string {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
