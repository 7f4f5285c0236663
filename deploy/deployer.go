package deploy

import (
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/pkg/errors"
	"github.com/xmidt-org/hestia/clock"
	"github.com/xmidt-org/hestia/logging"
	"github.com/xmidt-org/hestia/xmetrics"
)

const (
	// DefaultPattern matches the descriptor files picked up from the monitored directory
	DefaultPattern = "*.json"

	// DefaultScanInterval is how often the monitored directory is scanned
	DefaultScanInterval = time.Second

	// DefaultQuietPeriod is how long the monitored directory must be stable
	// before changes are deployed.  This keeps partially written descriptors
	// from being picked up.
	DefaultQuietPeriod = time.Second
)

// EventType describes what happened to a context
type EventType int

const (
	// EventDeploy indicates a context was deployed or redeployed
	EventDeploy EventType = iota

	// EventUndeploy indicates a context was removed
	EventUndeploy

	// EventFailed indicates a descriptor could not be deployed
	EventFailed
)

// Event describes a deployment change
type Event struct {
	Type        EventType
	File        string
	ContextPath string
	Err         error
}

// Listener receives deployment events.  Listeners are invoked synchronously
// from the scanning goroutine, in registration order.
type Listener func(Event)

// Options configures a Deployer
type Options struct {
	// Logger is the go-kit logger for deployer output.  If unset, logging.DefaultLogger() is used.
	Logger log.Logger

	// Clock is the time source.  If unset, clock.System() is used.
	Clock clock.Interface

	// Directory is the required directory monitored for descriptor files
	Directory string

	// Pattern is the glob matched against file names in the directory.
	// Defaults to DefaultPattern.
	Pattern string

	// ScanInterval is how often the directory is scanned.  Defaults to DefaultScanInterval.
	ScanInterval time.Duration

	// QuietPeriod is how long observed changes must be stable before deployment.
	// Defaults to DefaultQuietPeriod.
	QuietPeriod time.Duration

	// Listeners receive deployment events
	Listeners []Listener

	// Deployed is set to the count of deployed contexts.  If unset, a discard gauge is used.
	Deployed xmetrics.Setter

	// Failures is incremented for each descriptor that fails to deploy.
	// If unset, a discard counter is used.
	Failures xmetrics.Adder
}

// fileState is the observed state of a single descriptor file
type fileState struct {
	modTime time.Time
	size    int64
}

// Deployer monitors a directory of descriptor files and serves the deployed
// contexts.  Descriptor changes are applied by swapping the entire context set
// atomically:  requests already dispatched to an old context run to completion.
type Deployer struct {
	logger    log.Logger
	clock     clock.Interface
	directory string
	pattern   string
	interval  time.Duration
	quiet     time.Duration
	listeners []Listener
	deployed  xmetrics.Setter
	failures  xmetrics.Incrementer

	current atomic.Value

	// scanner state, touched only by the scanning goroutine (or Deploy in tests)
	lastSeen    map[string]fileState
	stableSince time.Time
	pending     bool

	once sync.Once
}

// New constructs a Deployer.  The monitored directory must exist.
func New(o Options) (*Deployer, error) {
	if len(o.Directory) == 0 {
		return nil, errors.New("a directory is required")
	}

	if info, err := os.Stat(o.Directory); err != nil {
		return nil, errors.Wrapf(err, "unable to stat deploy directory: %s", o.Directory)
	} else if !info.IsDir() {
		return nil, errors.Errorf("not a directory: %s", o.Directory)
	}

	if o.Logger == nil {
		o.Logger = logging.DefaultLogger()
	}

	if o.Clock == nil {
		o.Clock = clock.System()
	}

	if len(o.Pattern) == 0 {
		o.Pattern = DefaultPattern
	}

	if o.ScanInterval <= 0 {
		o.ScanInterval = DefaultScanInterval
	}

	if o.QuietPeriod <= 0 {
		o.QuietPeriod = DefaultQuietPeriod
	}

	if o.Deployed == nil {
		o.Deployed = discard.NewGauge()
	}

	if o.Failures == nil {
		o.Failures = discard.NewCounter()
	}

	d := &Deployer{
		logger:    o.Logger,
		clock:     o.Clock,
		directory: o.Directory,
		pattern:   o.Pattern,
		interval:  o.ScanInterval,
		quiet:     o.QuietPeriod,
		listeners: o.Listeners,
		deployed:  o.Deployed,
		failures:  xmetrics.NewIncrementer(o.Failures),
	}

	d.current.Store(NewContexts(nil))
	return d, nil
}

// Contexts returns the currently deployed context set
func (d *Deployer) Contexts() *Contexts {
	return d.current.Load().(*Contexts)
}

// ServeHTTP dispatches to the currently deployed context set
func (d *Deployer) ServeHTTP(response http.ResponseWriter, request *http.Request) {
	d.Contexts().ServeHTTP(response, request)
}

func (d *Deployer) dispatch(e Event) {
	for _, l := range d.listeners {
		l(e)
	}
}

// snapshot observes the current state of the monitored directory
func (d *Deployer) snapshot() map[string]fileState {
	matches, err := filepath.Glob(filepath.Join(d.directory, d.pattern))
	if err != nil {
		d.logger.Log(level.Key(), level.ErrorValue(), logging.MessageKey(), "unable to scan deploy directory", logging.ErrorKey(), err)
		return d.lastSeen
	}

	observed := make(map[string]fileState, len(matches))
	for _, path := range matches {
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			observed[path] = fileState{modTime: info.ModTime(), size: info.Size()}
		}
	}

	return observed
}

func sameState(lhs, rhs map[string]fileState) bool {
	if len(lhs) != len(rhs) {
		return false
	}

	for path, state := range lhs {
		if other, ok := rhs[path]; !ok || !other.modTime.Equal(state.modTime) || other.size != state.size {
			return false
		}
	}

	return true
}

// Deploy reads every descriptor in the monitored directory and swaps in a new
// context set.  A deploy event is dispatched for each context in the new set,
// and an undeploy event for each context no longer present.  The scanning
// goroutine invokes this when the directory settles.
func (d *Deployer) Deploy() {
	observed := d.snapshot()
	previous := make(map[string]Context, len(d.Contexts().Deployed()))
	for _, c := range d.Contexts().Deployed() {
		previous[c.File] = c
	}

	deployed := make([]Context, 0, len(observed))
	for path := range observed {
		descriptor, err := ReadDescriptor(path)
		if err == nil {
			var handler http.Handler
			if handler, err = descriptor.NewHandler(); err == nil {
				deployed = append(deployed, Context{
					File:       path,
					Descriptor: descriptor,
					handler:    handler,
				})

				continue
			}
		}

		d.failures.Inc()
		d.logger.Log(level.Key(), level.ErrorValue(),
			logging.MessageKey(), "unable to deploy descriptor",
			"file", path,
			logging.ErrorKey(), err,
		)

		d.dispatch(Event{Type: EventFailed, File: path, Err: err})
	}

	d.current.Store(NewContexts(deployed))
	d.deployed.Set(float64(len(deployed)))

	for _, c := range deployed {
		d.logger.Log(level.Key(), level.InfoValue(),
			logging.MessageKey(), "deployed",
			"file", c.File,
			"contextPath", c.Descriptor.ContextPath,
		)

		d.dispatch(Event{Type: EventDeploy, File: c.File, ContextPath: c.Descriptor.ContextPath})
		delete(previous, c.File)
	}

	for _, c := range previous {
		d.logger.Log(level.Key(), level.InfoValue(),
			logging.MessageKey(), "undeployed",
			"file", c.File,
			"contextPath", c.Descriptor.ContextPath,
		)

		d.dispatch(Event{Type: EventUndeploy, File: c.File, ContextPath: c.Descriptor.ContextPath})
	}

	d.lastSeen = observed
	d.pending = false
}

// scan is one pass of the monitoring loop.  Changes are deployed only after the
// directory has been stable for the quiet period.
func (d *Deployer) scan(now time.Time) {
	observed := d.snapshot()
	if !sameState(observed, d.lastSeen) {
		d.lastSeen = observed
		d.stableSince = now
		d.pending = true
		return
	}

	if d.pending && now.Sub(d.stableSince) >= d.quiet {
		d.Deploy()
	}
}

// Run performs the initial deployment, then starts the goroutine that monitors
// the directory for changes.  This method is idempotent.
func (d *Deployer) Run(waitGroup *sync.WaitGroup, shutdown <-chan struct{}) error {
	d.once.Do(func() {
		d.Deploy()

		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()

			ticker := d.clock.NewTicker(d.interval)
			defer ticker.Stop()

			for {
				select {
				case <-shutdown:
					return
				case t := <-ticker.C():
					d.scan(t)
				}
			}
		}()
	})

	return nil
}
