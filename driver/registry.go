package driver

import (
	"slices"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	// registeredRuntimes holds the runtimes registered so far. Protected by muRuntimes.
	registeredRuntimes = make(map[string]Runtime)
	muRuntimes         sync.Mutex
)

// Register makes a Runtime available by name. It is usually called in the init function of the package
// implementing the runtime (see packages driver/emu and driver/native).
//
// It fails if another runtime was already registered with the same name.
func Register(name string, runtime Runtime) error {
	if runtime == nil {
		return errors.Errorf("driver.Register(%q) called with a nil Runtime", name)
	}
	muRuntimes.Lock()
	defer muRuntimes.Unlock()
	if _, found := registeredRuntimes[name]; found {
		return errors.Errorf("driver.Register(%q): a runtime with this name is already registered", name)
	}
	registeredRuntimes[name] = runtime
	klog.V(1).Infof("registered accelerator runtime %q", name)
	return nil
}

// Get returns the runtime registered with the given name.
func Get(name string) (Runtime, error) {
	muRuntimes.Lock()
	defer muRuntimes.Unlock()
	runtime, found := registeredRuntimes[name]
	if !found {
		names := make([]string, 0, len(registeredRuntimes))
		for n := range registeredRuntimes {
			names = append(names, n)
		}
		slices.Sort(names)
		return nil, errors.Errorf("accelerator runtime %q not registered, available runtimes: %q", name, names)
	}
	return runtime, nil
}

// Names returns the sorted names of the registered runtimes.
func Names() []string {
	muRuntimes.Lock()
	defer muRuntimes.Unlock()
	names := make([]string, 0, len(registeredRuntimes))
	for n := range registeredRuntimes {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// DefaultName returns "xrt" if the native runtime is linked in (built with `-tags xrt`), otherwise "emu".
func DefaultName() string {
	muRuntimes.Lock()
	defer muRuntimes.Unlock()
	if _, found := registeredRuntimes["xrt"]; found {
		return "xrt"
	}
	return "emu"
}
