package guard

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"

	"github.com/nodusnet/console/pkg/rbac"
)

// Requirement is one route's permission requirement from the policy file.
type Requirement struct {
	Name      string `yaml:"name"`
	Operation string `yaml:"operation"`
	Resource  string `yaml:"resource"`
	Scope     string `yaml:"scope"`
}

// Policy maps route names to permission requirements. A missing route name
// denies, matching the fail-closed posture of the permission store.
type Policy struct {
	Routes []Requirement `yaml:"routes"`

	byName map[string]Requirement
}

// LoadPolicy reads and validates a YAML policy file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses and validates YAML policy content.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing policy: %w", err)
	}

	p.byName = make(map[string]Requirement, len(p.Routes))
	for _, req := range p.Routes {
		if req.Name == "" {
			return nil, fmt.Errorf("policy route missing name")
		}
		if _, err := rbac.ParseOperation(req.Operation); err != nil {
			return nil, fmt.Errorf("route %s: %w", req.Name, err)
		}
		if _, err := rbac.ParseResource(req.Resource); err != nil {
			return nil, fmt.Errorf("route %s: %w", req.Name, err)
		}
		if _, err := rbac.ParseScope(req.Scope); err != nil {
			return nil, fmt.Errorf("route %s: %w", req.Name, err)
		}
		if _, dup := p.byName[req.Name]; dup {
			return nil, fmt.Errorf("duplicate policy route: %s", req.Name)
		}
		p.byName[req.Name] = req
	}
	return &p, nil
}

// Lookup returns the requirement for a route name.
func (p *Policy) Lookup(name string) (Requirement, bool) {
	req, ok := p.byName[name]
	return req, ok
}

// PolicyGuard applies a reloadable policy file to named routes.
type PolicyGuard struct {
	guard *Guard
	path  string

	mu     sync.RWMutex
	policy *Policy
}

// NewPolicyGuard loads the policy file and wraps the guard with it.
func NewPolicyGuard(g *Guard, path string) (*PolicyGuard, error) {
	policy, err := LoadPolicy(path)
	if err != nil {
		return nil, err
	}
	return &PolicyGuard{guard: g, path: path, policy: policy}, nil
}

// Lookup consults the currently loaded policy.
func (pg *PolicyGuard) Lookup(name string) (Requirement, bool) {
	return pg.current().Lookup(name)
}

func (pg *PolicyGuard) current() *Policy {
	pg.mu.RLock()
	defer pg.mu.RUnlock()
	return pg.policy
}

// Reload re-reads the policy file. On parse failure the previous policy
// stays in effect.
func (pg *PolicyGuard) Reload() error {
	policy, err := LoadPolicy(pg.path)
	if err != nil {
		return err
	}
	pg.mu.Lock()
	pg.policy = policy
	pg.mu.Unlock()
	return nil
}

// Watch reloads the policy whenever the file changes, until ctx is done.
// Editors that replace the file (rename + create) are handled as writes.
func (pg *PolicyGuard) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	if err := watcher.Add(pg.path); err != nil {
		watcher.Close()
		return fmt.Errorf("watching policy file: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if event.Op&fsnotify.Rename != 0 {
					// The watch follows the inode; re-add the path.
					watcher.Add(pg.path)
				}
				if err := pg.Reload(); err != nil {
					pg.guard.log.WithError(err).Warn("policy reload failed, keeping previous policy")
					continue
				}
				pg.guard.log.WithField("path", pg.path).Info("route policy reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				pg.guard.log.WithError(err).Warn("policy watcher error")
			}
		}
	}()

	return nil
}

// Require returns middleware enforcing the named policy route. The policy
// is consulted per request so a reload takes effect immediately. Unknown
// route names deny with 403.
func (pg *PolicyGuard) Require(name string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req, ok := pg.current().Lookup(name)
			if !ok {
				pg.guard.log.WithField("route", name).Warn("no policy for route")
				pg.guard.deny(w, r, http.StatusForbidden, "permission denied")
				return
			}

			op, _ := rbac.ParseOperation(req.Operation)
			res, _ := rbac.ParseResource(req.Resource)
			scope, _ := rbac.ParseScope(req.Scope)

			pg.guard.Require(op, res, scope)(next).ServeHTTP(w, r)
		})
	}
}
