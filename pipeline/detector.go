package pipeline

import (
	"fmt"
	"sync"

	"go.viam.com/rdk/logging"
)

// DetectorConstructor builds a detector implementation. One concrete
// detector is active per process; the registry only selects it by name at
// construction time.
type DetectorConstructor func(logger logging.Logger) (Detector, error)

var (
	detectorsMu sync.RWMutex
	detectors   = map[string]DetectorConstructor{}
)

// RegisterDetector makes a detector constructor available under a name,
// typically from an init function in the package providing the binding to
// the external marker-detection library.
func RegisterDetector(name string, ctor DetectorConstructor) {
	detectorsMu.Lock()
	defer detectorsMu.Unlock()
	if _, ok := detectors[name]; ok {
		panic(fmt.Sprintf("detector %q registered twice", name))
	}
	detectors[name] = ctor
}

// NewDetector constructs the named detector.
func NewDetector(name string, logger logging.Logger) (Detector, error) {
	detectorsMu.RLock()
	ctor, ok := detectors[name]
	detectorsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no detector registered under %q", name)
	}
	return ctor(logger)
}
