package plugin

import (
	"context"

	"go.uber.org/zap"
)

type visit int

const (
	unvisited visit = iota
	visiting
	visited
)

// frame is one descriptor on the resolution path.
type frame struct {
	host *Host
	deps []string
	next int
	err  error
}

// ResolveAndLoad resolves the dependency graph of descs and loads every
// descriptor whose dependencies resolve, dependencies first. The walk is
// an iterative depth first search over an explicit path stack:
//
//   - a dependency already on the path is a cycle and fails every
//     descriptor of the cycle
//   - an absent hard dependency fails the descriptor, an absent soft
//     dependency is only logged
//   - a present dependency that fails, hard or soft, fails the dependent
//
// Results are memoized so shared dependencies resolve once. Names that
// were resolved by an earlier call keep their state.
func (m *Manager) ResolveAndLoad(ctx context.Context, descs []*Descriptor) map[string]bool {
	known := make(map[string]*Host, len(descs))
	marks := make(map[string]visit, len(descs))
	results := make(map[string]bool, len(descs))

	m.mu.Lock()
	for _, d := range descs {
		if _, dup := known[d.Name]; dup {
			continue
		}
		if existing, ok := m.hosts[d.Name]; ok {
			m.logger.Warn("already resolved", zap.String("name", d.Name), zap.Stringer("state", existing.State()))
			marks[d.Name] = visited
			results[d.Name] = existing.WasLoaded() && existing.State() != StateFailed
			continue
		}
		h := newHost(m, d)
		known[d.Name] = h
		m.hosts[d.Name] = h
		m.order = append(m.order, h)
	}
	m.mu.Unlock()

	for _, d := range descs {
		if marks[d.Name] != unvisited {
			continue
		}

		root := known[d.Name]
		marks[d.Name] = visiting
		stack := []*frame{{host: root, deps: d.Dependencies()}}

		for len(stack) > 0 {
			top := stack[len(stack)-1]

			if top.err == nil && top.next < len(top.deps) {
				dep := top.deps[top.next]
				top.next++
				if child := m.step(top, dep, stack, known, marks, results); child != nil {
					marks[dep] = visiting
					stack = append(stack, child)
				}
				continue
			}

			stack = stack[:len(stack)-1]
			ok := m.finish(ctx, top)
			marks[top.host.desc.Name] = visited
			results[top.host.desc.Name] = ok

			if !ok && len(stack) > 0 {
				parent := stack[len(stack)-1]
				if parent.err == nil {
					parent.err = &ResolutionError{
						Name:       parent.host.desc.Name,
						Reason:     ReasonFailedDependency,
						Dependency: top.host.desc.Name,
						Err:        top.err,
					}
				}
			}
		}
	}

	m.mu.Lock()
	for name, ok := range results {
		m.results[name] = ok
	}
	m.mu.Unlock()

	return results
}

// step examines one dependency of top. It returns a frame to push when
// the dependency must be resolved first.
func (m *Manager) step(top *frame, dep string, stack []*frame, known map[string]*Host, marks map[string]visit, results map[string]bool) *frame {
	desc := top.host.desc

	h, ok := known[dep]
	if !ok {
		if _, found := m.Get(dep); found {
			if !m.isLoaded(dep) {
				top.err = &ResolutionError{Name: desc.Name, Reason: ReasonFailedDependency, Dependency: dep}
			}
			return nil
		}
		if !desc.IsHard(dep) {
			top.host.logger.Warn("soft dependency not found", zap.String("dependency", dep))
			return nil
		}
		top.err = &ResolutionError{Name: desc.Name, Reason: ReasonNotFound, Dependency: dep}
		return nil
	}

	switch marks[dep] {
	case visiting:
		path := cyclePath(stack, dep)
		for _, f := range stack {
			if f.err == nil && contains(path, f.host.desc.Name) {
				f.err = &ResolutionError{Name: f.host.desc.Name, Reason: ReasonCycle, Dependency: dep, Path: path}
			}
		}
		return nil
	case visited:
		if !results[dep] {
			top.err = &ResolutionError{Name: desc.Name, Reason: ReasonFailedDependency, Dependency: dep, Err: h.Err()}
		}
		return nil
	default:
		return &frame{host: h, deps: h.desc.Dependencies()}
	}
}

// finish loads a frame whose dependencies were all examined.
func (m *Manager) finish(ctx context.Context, f *frame) bool {
	h := f.host
	if f.err == nil {
		f.err = m.checkModules(h.desc)
	}
	if f.err == nil {
		f.err = m.instantiate(ctx, h)
	}
	if f.err != nil {
		h.fail(f.err)
		h.logger.Error("load failed", zap.Error(f.err))
		return false
	}
	return true
}

// checkModules verifies that the modules a bot requires are loaded in the
// parent manager.
func (m *Manager) checkModules(d *Descriptor) error {
	for _, mod := range d.Modules {
		if m.parent == nil || !m.parent.isLoaded(mod) {
			return &ResolutionError{Name: d.Name, Reason: ReasonMissingModule, Dependency: mod}
		}
	}
	return nil
}

// cyclePath returns the path from dep to the top of the stack, closed
// with dep again.
func cyclePath(stack []*frame, dep string) []string {
	start := 0
	for i, f := range stack {
		if f.host.desc.Name == dep {
			start = i
			break
		}
	}
	path := make([]string, 0, len(stack)-start+1)
	for _, f := range stack[start:] {
		path = append(path, f.host.desc.Name)
	}
	return append(path, dep)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
