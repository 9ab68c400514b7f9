// Package schema holds the class, field and relation metadata registry of
// the object layer, including hierarchy resolution: which classes share a
// physical collection and which class is the root of a hierarchy.
package schema

import (
	"fmt"
	"regexp"
	"sync"
)

var nameConstraint = regexp.MustCompile("^[A-Za-z0-9_-]+$")

// Registry holds all class definitions.
type Registry struct {
	lock     sync.Mutex
	classes  map[string]*Class
	order    []string
	resolved bool
}

// ClassOption configures a class at definition time.
type ClassOption func(*defineOptions)

type defineOptions struct {
	parent string
}

// Extends sets the parent class of a new class definition.
func Extends(parent string) ClassOption {
	return func(o *defineOptions) {
		o.parent = parent
	}
}

// NewRegistry creates an empty class registry.
func NewRegistry() *Registry {
	return &Registry{
		classes: make(map[string]*Class),
	}
}

// Define registers a new class. The parent class, if any, must already be
// defined.
func (r *Registry) Define(name string, opts ...ClassOption) (*Class, error) {
	var o defineOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if !nameConstraint.MatchString(name) {
		return nil, fmt.Errorf("class name %q must only contain alphanumeric and `_-` characters", name)
	}
	if _, ok := r.classes[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrClassExists, name)
	}

	var parent *Class
	if o.parent != "" {
		var ok bool
		parent, ok = r.classes[o.parent]
		if !ok {
			return nil, fmt.Errorf("%w: parent %s of %s", ErrClassNotFound, o.parent, name)
		}
	}

	cls := &Class{
		reg:    r,
		name:   name,
		parent: parent,
	}
	r.classes[name] = cls
	r.order = append(r.order, name)
	r.resolved = false
	return cls, nil
}

// Class returns the class with the given name.
func (r *Registry) Class(name string) (*Class, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	cls, ok := r.classes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	return cls, nil
}

// Classes returns all defined classes in definition order.
func (r *Registry) Classes() []*Class {
	r.lock.Lock()
	defer r.lock.Unlock()

	all := make([]*Class, 0, len(r.order))
	for _, name := range r.order {
		all = append(all, r.classes[name])
	}
	return all
}

// RootClass resolves the root class of the hierarchy the given class belongs
// to: the unique class in its ancestor chain whose ClassNames list has
// exactly one entry. More than one such class means the hierarchy declares a
// primary key twice with a gap in between; none means it declares no primary
// key at all.
func (r *Registry) RootClass(cls *Class) (*Class, error) {
	r.resolve()

	var root *Class
	for c := cls; c != nil; c = c.parent {
		if len(c.classNames) == 1 {
			if root != nil {
				return nil, fmt.Errorf("%w: both %s and %s qualify", ErrAmbiguousHierarchy, root.name, c.name)
			}
			root = c
		}
	}
	if root == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoRoot, cls.name)
	}
	return root, nil
}

// invalidate marks the resolved views as stale. Called by class builders.
func (r *Registry) invalidate() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.resolved = false
}

// resolve recomputes the resolved views of all classes, in definition order
// so parents are always resolved before their children.
func (r *Registry) resolve() {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.resolved {
		return
	}
	for _, name := range r.order {
		r.classes[name].resolveLocked()
	}
	r.resolved = true
}
