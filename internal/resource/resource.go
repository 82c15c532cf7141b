// Package resource exposes the appliance's REST collections as statically
// declared capability sets. Each collection supports exactly the operations
// the backend supports; invoking anything else returns ErrUnsupported
// without a network call.
package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrUnsupported is returned when a collection does not offer the
	// requested operation
	ErrUnsupported = errors.New("operation not supported for this object type")

	// ErrUnknownType is returned for object types outside the registry
	ErrUnknownType = errors.New("unknown object type")

	// ErrNotFound is returned when a name cannot be resolved to an id
	ErrNotFound = errors.New("object not found")
)

// Action is one verb of the query grammar
type Action string

const (
	ActionGet    Action = "get"
	ActionList   Action = "list"
	ActionFind   Action = "find"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ParseAction maps a grammar verb to an Action; "set" is accepted as an
// alias for update
func ParseAction(word string) (Action, bool) {
	switch strings.ToLower(word) {
	case "get":
		return ActionGet, true
	case "list":
		return ActionList, true
	case "find":
		return ActionFind, true
	case "create":
		return ActionCreate, true
	case "update", "set":
		return ActionUpdate, true
	case "delete":
		return ActionDelete, true
	}
	return "", false
}

// Mutating reports whether the action changes backend state and is therefore
// restricted to the admin channel
func (a Action) Mutating() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Doer is the subset of the API client the facade needs
type Doer interface {
	Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error)
	Post(ctx context.Context, path string, body any) (json.RawMessage, error)
	Put(ctx context.Context, path string, body any) (json.RawMessage, error)
	Delete(ctx context.Context, path string) (json.RawMessage, error)
}

// Collection describes one many-instance resource and the operations the
// backend supports for it. Path is relative to the API root; parented
// collections get their parent's id spliced in
type Collection struct {
	Name   string // plural object type, e.g. "nodes"
	Path   string // e.g. "nodes", "nodes/smartgroups"
	Parent string // parent object type for nested collections, "" = root
	Ops    map[Action]bool
}

// Supports reports whether the collection offers the action
func (c *Collection) Supports(a Action) bool {
	if a == ActionGet { // get on a collection is a list
		a = ActionList
	}
	return c.Ops[a]
}

// Singleton describes a one-instance config resource with get/update only
type Singleton struct {
	Name     string // e.g. "hostname"
	Path     string // e.g. "system/hostname"
	ReadOnly bool
}

// Registry holds every declared collection and singleton, keyed by plural
// object type. Built once at startup, treated as immutable afterwards
type Registry struct {
	client      Doer
	collections map[string]*Collection
	singletons  map[string]*Singleton
}

func ops(actions ...Action) map[Action]bool {
	m := make(map[Action]bool, len(actions))
	for _, a := range actions {
		m[a] = true
	}
	return m
}

// NewRegistry declares the appliance's resource surface. Ports are
// provisioned hardware records: they can be read but never created or
// deleted through the bot
func NewRegistry(client Doer) *Registry {
	r := &Registry{
		client:      client,
		collections: make(map[string]*Collection),
		singletons:  make(map[string]*Singleton),
	}

	for _, c := range []*Collection{
		{Name: "nodes", Path: "nodes",
			Ops: ops(ActionList, ActionFind, ActionCreate, ActionUpdate, ActionDelete)},
		{Name: "smartgroups", Path: "nodes/smartgroups",
			Ops: ops(ActionList, ActionFind, ActionCreate, ActionUpdate, ActionDelete)},
		{Name: "tags", Path: "tags", Parent: "nodes",
			Ops: ops(ActionList, ActionFind, ActionCreate, ActionUpdate, ActionDelete)},
		{Name: "ports", Path: "ports",
			Ops: ops(ActionList, ActionFind)},
		{Name: "users", Path: "users",
			Ops: ops(ActionList, ActionFind, ActionCreate, ActionUpdate, ActionDelete)},
		{Name: "groups", Path: "groups",
			Ops: ops(ActionList, ActionFind, ActionCreate, ActionUpdate, ActionDelete)},
		{Name: "licenses", Path: "system/licenses",
			Ops: ops(ActionList, ActionFind, ActionCreate)},
		{Name: "entitlements", Path: "system/entitlements",
			Ops: ops(ActionList)},
	} {
		r.collections[c.Name] = c
	}

	for _, s := range []*Singleton{
		{Name: "hostname", Path: "system/hostname"},
		{Name: "timezone", Path: "system/timezone"},
		{Name: "webui_session_timeout", Path: "system/webui_session_timeout"},
		{Name: "global_enrollment_token", Path: "system/global_enrollment_token"},
		{Name: "version", Path: "system/version", ReadOnly: true},
	} {
		r.singletons[s.Name] = s
	}

	return r
}

// Lookup resolves a plural object type to its collection
func (r *Registry) Lookup(objectType string) (*Collection, bool) {
	c, ok := r.collections[objectType]
	return c, ok
}

// LookupSingleton resolves a system config name to its singleton
func (r *Registry) LookupSingleton(name string) (*Singleton, bool) {
	s, ok := r.singletons[name]
	return s, ok
}

// ErrParentRequired is returned when a nested collection is accessed
// without its parent object
var ErrParentRequired = errors.New("parent object required")

// path builds the request path, splicing the parent id for nested collections
func (c *Collection) path(parentID string) (string, error) {
	if c.Parent == "" {
		return c.Path, nil
	}
	if parentID == "" {
		return "", fmt.Errorf("%w: %s from %s", ErrParentRequired, c.Name, c.Parent)
	}
	return fmt.Sprintf("%s/%s/%s", c.Parent, parentID, c.Path), nil
}

// List fetches the collection, optionally pre-filtered
func (r *Registry) List(ctx context.Context, objectType string, params url.Values, parentID string) (json.RawMessage, error) {
	c, ok := r.Lookup(objectType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, objectType)
	}
	if !c.Supports(ActionList) {
		return nil, fmt.Errorf("%w: list %s", ErrUnsupported, objectType)
	}
	p, err := c.path(parentID)
	if err != nil {
		return nil, err
	}
	return r.client.Get(ctx, p, params)
}

// Find fetches one object by id
func (r *Registry) Find(ctx context.Context, objectType, id, parentID string) (json.RawMessage, error) {
	c, ok := r.Lookup(objectType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, objectType)
	}
	if !c.Supports(ActionFind) {
		return nil, fmt.Errorf("%w: find %s", ErrUnsupported, objectType)
	}
	p, err := c.path(parentID)
	if err != nil {
		return nil, err
	}
	return r.client.Get(ctx, p+"/"+url.PathEscape(id), nil)
}

// Create posts a new object into the collection
func (r *Registry) Create(ctx context.Context, objectType string, body any, parentID string) (json.RawMessage, error) {
	c, ok := r.Lookup(objectType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, objectType)
	}
	if !c.Supports(ActionCreate) {
		return nil, fmt.Errorf("%w: create %s", ErrUnsupported, objectType)
	}
	p, err := c.path(parentID)
	if err != nil {
		return nil, err
	}
	return r.client.Post(ctx, p, body)
}

// Update puts new content for one object
func (r *Registry) Update(ctx context.Context, objectType, id string, body any, parentID string) (json.RawMessage, error) {
	c, ok := r.Lookup(objectType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, objectType)
	}
	if !c.Supports(ActionUpdate) {
		return nil, fmt.Errorf("%w: update %s", ErrUnsupported, objectType)
	}
	p, err := c.path(parentID)
	if err != nil {
		return nil, err
	}
	return r.client.Put(ctx, p+"/"+url.PathEscape(id), body)
}

// Delete removes one object by id
func (r *Registry) Delete(ctx context.Context, objectType, id, parentID string) (json.RawMessage, error) {
	c, ok := r.Lookup(objectType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, objectType)
	}
	if !c.Supports(ActionDelete) {
		return nil, fmt.Errorf("%w: delete %s", ErrUnsupported, objectType)
	}
	p, err := c.path(parentID)
	if err != nil {
		return nil, err
	}
	return r.client.Delete(ctx, p+"/"+url.PathEscape(id))
}

// GetSingleton fetches a one-instance config resource
func (r *Registry) GetSingleton(ctx context.Context, name string) (json.RawMessage, error) {
	s, ok := r.LookupSingleton(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return r.client.Get(ctx, s.Path, nil)
}

// UpdateSingleton replaces a one-instance config resource
func (r *Registry) UpdateSingleton(ctx context.Context, name string, body any) (json.RawMessage, error) {
	s, ok := r.LookupSingleton(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	if s.ReadOnly {
		return nil, fmt.Errorf("%w: update %s", ErrUnsupported, name)
	}
	return r.client.Put(ctx, s.Path, body)
}
