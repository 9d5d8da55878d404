package instrument

import (
	"fmt"
	"sort"
	"sync"

	"github.com/instrkit/instrkit-go/pkg/comms"
)

// Factory builds a driver session bound to a transport.
type Factory func(transport comms.Transport, opts Options) (*Instrument, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]Factory{}
)

// Register makes a driver factory available under the given name.
// Registering the same name twice is a programming error.
func Register(name string, factory Factory) error {
	driversMu.Lock()
	defer driversMu.Unlock()
	if name == "" || factory == nil {
		return fmt.Errorf("driver registration needs a name and a factory")
	}
	if _, dup := drivers[name]; dup {
		return fmt.Errorf("driver %s registered twice", name)
	}
	drivers[name] = factory
	return nil
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, bool) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	f, ok := drivers[name]
	return f, ok
}

// Drivers lists the registered driver names, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
