package realm

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/xmidt-org/hestia/clock"
	"github.com/xmidt-org/hestia/logging"
	"github.com/xmidt-org/hestia/xhttp"
)

const (
	// DefaultName is the realm name when none is configured.  It appears in
	// WWW-Authenticate challenges.
	DefaultName = "default"

	// DefaultRefreshInterval is how often the properties file is checked for changes
	DefaultRefreshInterval = 10 * time.Second

	md5Prefix = "MD5:"
	shaPrefix = "SHA:"
)

// credential is a single user's stored password in one of its supported forms
type credential interface {
	matches(password string) bool
}

type plainCredential string

func (pc plainCredential) matches(password string) bool {
	return subtle.ConstantTimeCompare([]byte(pc), []byte(password)) == 1
}

type md5Credential []byte

func (mc md5Credential) matches(password string) bool {
	digest := md5.Sum([]byte(password))
	return subtle.ConstantTimeCompare(mc, digest[:]) == 1
}

type shaCredential []byte

func (sc shaCredential) matches(password string) bool {
	digest := sha1.Sum([]byte(password))
	return subtle.ConstantTimeCompare(sc, digest[:]) == 1
}

// parseCredential interprets a stored password.  Passwords prefixed with MD5:
// are hex-encoded MD5 digests, and passwords prefixed with SHA: are base64-encoded
// SHA-1 digests.  Anything else is a plaintext password.
func parseCredential(value string) (credential, error) {
	switch {
	case strings.HasPrefix(value, md5Prefix):
		digest, err := hex.DecodeString(value[len(md5Prefix):])
		if err != nil {
			return nil, errors.Wrap(err, "invalid MD5 credential")
		}

		return md5Credential(digest), nil

	case strings.HasPrefix(value, shaPrefix):
		digest, err := base64.StdEncoding.DecodeString(value[len(shaPrefix):])
		if err != nil {
			return nil, errors.Wrap(err, "invalid SHA credential")
		}

		return shaCredential(digest), nil

	default:
		return plainCredential(value), nil
	}
}

type user struct {
	credential credential
	roles      map[string]bool
}

// Options configures a Realm
type Options struct {
	// Logger is the go-kit logger for realm output.  If unset, logging.DefaultLogger() is used.
	Logger log.Logger

	// Clock is the time source for refresh checks.  If unset, clock.System() is used.
	Clock clock.Interface

	// Name is the realm name used in WWW-Authenticate challenges.  Defaults to DefaultName.
	Name string

	// File is the required path to the properties file.  Each line has the form
	//
	//   username: password[,role1,role2,...]
	//
	// Blank lines and lines beginning with # are ignored.
	File string

	// RefreshInterval is how often the properties file is checked for changes when
	// the realm is run.  Defaults to DefaultRefreshInterval.
	RefreshInterval time.Duration
}

// Realm authenticates users against a properties file.  The file is reloaded
// when its modification time changes, without disturbing requests in flight.
type Realm struct {
	logger   log.Logger
	clock    clock.Interface
	name     string
	file     string
	interval time.Duration

	lock    sync.RWMutex
	users   map[string]user
	modTime time.Time

	once sync.Once
}

// New constructs a Realm and performs the initial load of its properties file.
// A file that does not exist or cannot be parsed is an error.
func New(o Options) (*Realm, error) {
	if len(o.File) == 0 {
		return nil, errors.New("a properties file is required")
	}

	if o.Logger == nil {
		o.Logger = logging.DefaultLogger()
	}

	if o.Clock == nil {
		o.Clock = clock.System()
	}

	if len(o.Name) == 0 {
		o.Name = DefaultName
	}

	if o.RefreshInterval <= 0 {
		o.RefreshInterval = DefaultRefreshInterval
	}

	r := &Realm{
		logger:   o.Logger,
		clock:    o.Clock,
		name:     o.Name,
		file:     o.File,
		interval: o.RefreshInterval,
	}

	if err := r.load(); err != nil {
		return nil, err
	}

	return r, nil
}

// Name returns the realm name
func (r *Realm) Name() string {
	return r.name
}

func parseUsers(data []byte) (map[string]user, error) {
	users := make(map[string]user)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if len(text) == 0 || strings.HasPrefix(text, "#") {
			continue
		}

		name, value, found := strings.Cut(text, ":")
		name = strings.TrimSpace(name)
		if !found || len(name) == 0 {
			return nil, fmt.Errorf("malformed entry on line %d", line)
		}

		fields := strings.Split(value, ",")
		c, err := parseCredential(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, errors.Wrapf(err, "malformed credential on line %d", line)
		}

		u := user{credential: c, roles: make(map[string]bool)}
		for _, role := range fields[1:] {
			if role = strings.TrimSpace(role); len(role) > 0 {
				u.roles[role] = true
			}
		}

		users[name] = u
	}

	return users, scanner.Err()
}

// load unconditionally reads and parses the properties file
func (r *Realm) load() error {
	fileInfo, err := os.Stat(r.file)
	if err != nil {
		return errors.Wrapf(err, "unable to stat realm file: %s", r.file)
	}

	data, err := os.ReadFile(r.file)
	if err != nil {
		return errors.Wrapf(err, "unable to read realm file: %s", r.file)
	}

	users, err := parseUsers(data)
	if err != nil {
		return errors.Wrapf(err, "unable to parse realm file: %s", r.file)
	}

	r.lock.Lock()
	r.users = users
	r.modTime = fileInfo.ModTime()
	r.lock.Unlock()

	r.logger.Log(level.Key(), level.InfoValue(),
		logging.MessageKey(), "realm loaded",
		"file", r.file,
		"users", len(users),
	)

	return nil
}

// Refresh reloads the properties file if its modification time has changed.
// A file that has become unreadable or unparseable leaves the previous users intact.
func (r *Realm) Refresh() error {
	fileInfo, err := os.Stat(r.file)
	if err != nil {
		return errors.Wrapf(err, "unable to stat realm file: %s", r.file)
	}

	r.lock.RLock()
	current := r.modTime
	r.lock.RUnlock()

	if fileInfo.ModTime().Equal(current) {
		return nil
	}

	return r.load()
}

// Run starts the goroutine that periodically refreshes the realm.  This method is idempotent.
func (r *Realm) Run(waitGroup *sync.WaitGroup, shutdown <-chan struct{}) error {
	r.once.Do(func() {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()

			ticker := r.clock.NewTicker(r.interval)
			defer ticker.Stop()

			for {
				select {
				case <-shutdown:
					return
				case <-ticker.C():
					if err := r.Refresh(); err != nil {
						r.logger.Log(level.Key(), level.ErrorValue(), logging.MessageKey(), "unable to refresh realm", logging.ErrorKey(), err)
					}
				}
			}
		}()
	})

	return nil
}

// Authenticate tests a username and password against the realm
func (r *Realm) Authenticate(username, password string) bool {
	r.lock.RLock()
	u, ok := r.users[username]
	r.lock.RUnlock()

	return ok && u.credential.matches(password)
}

// InRole tests whether a user has been granted the given role
func (r *Realm) InRole(username, role string) bool {
	r.lock.RLock()
	u, ok := r.users[username]
	r.lock.RUnlock()

	return ok && u.roles[role]
}

// BasicAuth produces an Alice-style constructor that requires HTTP Basic
// credentials valid in this realm.  If any roles are supplied, the authenticated
// user must additionally hold at least one of them.
func BasicAuth(r *Realm, roles ...string) func(http.Handler) http.Handler {
	challenge := fmt.Sprintf("Basic realm=%q", r.Name())

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
			username, password, ok := request.BasicAuth()
			if !ok || !r.Authenticate(username, password) {
				response.Header().Set("WWW-Authenticate", challenge)
				xhttp.WriteError(response, http.StatusUnauthorized, "authentication required")
				return
			}

			for _, role := range roles {
				if r.InRole(username, role) {
					next.ServeHTTP(response, request)
					return
				}
			}

			if len(roles) > 0 {
				xhttp.WriteError(response, http.StatusForbidden, "insufficient role")
				return
			}

			next.ServeHTTP(response, request)
		})
	}
}
