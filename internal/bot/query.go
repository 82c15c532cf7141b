package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/lanternops/lanternbot/internal/api"
	"github.com/lanternops/lanternbot/internal/resource"
	"github.com/lanternops/lanternbot/pkg/types"
)

var errBadQuery = errors.New("unparseable query")

// query is one parsed generic command:
//
//	<action> <object>[ <name>][ from <parent>[ <parent-name>]][ in <smartgroup>]
type query struct {
	action     resource.Action
	rawObject  string // object word as typed, for singleton lookup
	objectType string // pluralized
	objectName string
	parentType string
	parentName string
	smartGroup string
}

func indexOf(fields []string, word string) int {
	for i, f := range fields {
		if f == word {
			return i
		}
	}
	return -1
}

func parseQuery(text string) (*query, error) {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) < 2 {
		return nil, errBadQuery
	}

	action, ok := resource.ParseAction(fields[0])
	if !ok {
		return nil, errBadQuery
	}
	q := &query{action: action}

	rest := fields[1:]
	if len(rest) >= 2 && rest[len(rest)-2] == "in" {
		q.smartGroup = rest[len(rest)-1]
		rest = rest[:len(rest)-2]
	}

	if i := indexOf(rest, "from"); i >= 0 {
		parent := rest[i+1:]
		if len(parent) < 1 || len(parent) > 2 {
			return nil, errBadQuery
		}
		q.parentType = resource.Pluralize(parent[0])
		if len(parent) == 2 {
			q.parentName = parent[1]
		}
		rest = rest[:i]
	}

	if len(rest) < 1 || len(rest) > 2 {
		return nil, errBadQuery
	}
	q.rawObject = rest[0]
	q.objectType = resource.Pluralize(rest[0])
	if len(rest) == 2 {
		q.objectName = rest[1]
		// naming a specific object narrows a read to a find
		if !q.action.Mutating() {
			q.action = resource.ActionFind
		}
	}
	return q, nil
}

// queryTool is the fallback for commands that match no built-in intent. Any
// parse or execution failure degrades to the help text
func (d *Dispatcher) queryTool(ctx context.Context, text string, cmd types.Command) (reply string, isHelp bool) {
	q, err := parseQuery(text)
	if err != nil {
		return d.helpText(), true
	}

	if q.action.Mutating() && cmd.ChannelName != d.opts.AdminChannel {
		return fmt.Sprintf("Actions other than `get`, `find` and `list` "+
			"must take place at `%s` channel.", d.opts.AdminChannel), false
	}

	out, err := d.runQuery(ctx, q)
	if err != nil {
		var be *api.BackendError
		if errors.As(err, &be) && be.PermissionDenied() {
			return fmt.Sprintf("Object does not exist (please check the id) "+
				"or @%s is not allowed to fetch it.", d.opts.BotName), false
		}
		d.log.WithCommandID(cmd.ID).Debug("query %q failed: %v", text, err)
		return d.helpText(), true
	}
	return out, false
}

func (d *Dispatcher) runQuery(ctx context.Context, q *query) (string, error) {
	reg := d.helper.Registry()

	c, ok := reg.Lookup(q.objectType)
	if !ok {
		if _, ok := reg.LookupSingleton(q.rawObject); ok {
			return d.runSingletonQuery(ctx, q)
		}
		return "", fmt.Errorf("%w: %s", resource.ErrUnknownType, q.objectType)
	}
	if !c.Supports(q.action) {
		return "", fmt.Errorf("%w: %s %s", resource.ErrUnsupported, q.action, q.objectType)
	}

	// a parent reference either selects the nested path, or, for root
	// collections, names a smartgroup whose saved filter scopes the query
	filterName := q.smartGroup
	var parentID string
	if q.parentType != "" {
		switch {
		case c.Parent == q.parentType:
			if q.parentName != "" {
				id, err := d.helper.ObjectID(ctx, q.parentType, q.parentName, "", "")
				if err != nil {
					return "", err
				}
				parentID = id
			}
		case c.Parent == "" && q.parentType == "smartgroups" && q.parentName != "":
			if filterName == "" {
				filterName = q.parentName
			}
		default:
			return "", fmt.Errorf("%w: %s cannot be scoped by %s",
				errBadQuery, q.objectType, q.parentType)
		}
	}

	params := url.Values{}
	if filterName != "" {
		filter, err := d.helper.SmartGroupQuery(ctx, filterName)
		if err != nil {
			return "", err
		}
		params.Set("json", filter)
	}

	var objectID string
	if q.objectName != "" {
		id, err := d.helper.ObjectIDWithin(ctx, q.objectType, q.objectName, params, parentID)
		if err != nil {
			return "", err
		}
		objectID = id
	}

	switch q.action {
	case resource.ActionList, resource.ActionGet:
		raw, err := reg.List(ctx, q.objectType, params, parentID)
		if err != nil {
			return "", err
		}
		return d.formatCollection(raw, q.objectType), nil

	case resource.ActionFind:
		raw, err := reg.Find(ctx, q.objectType, objectID, parentID)
		if err != nil {
			if out, ok := d.findFallback(ctx, q, objectID, parentID, params, err); ok {
				return out, nil
			}
			return "", err
		}
		return DumpObject(raw), nil

	case resource.ActionDelete:
		if objectID == "" {
			return "", errBadQuery
		}
		if _, err := reg.Delete(ctx, q.objectType, objectID, parentID); err != nil {
			return "", err
		}
		return fmt.Sprintf(":white_check_mark: %s deleted.", q.objectName), nil
	}

	// create and update need a request body the chat grammar cannot carry
	return "", errBadQuery
}

// findFallback retries a failed find as a list-and-scan, in case the backend
// rejects direct lookups for the collection but still returns the object in
// a listing
func (d *Dispatcher) findFallback(ctx context.Context, q *query, objectID, parentID string, params url.Values, cause error) (string, bool) {
	var be *api.BackendError
	if !errors.As(cause, &be) || !be.NotFound() {
		return "", false
	}

	raw, err := d.helper.Registry().List(ctx, q.objectType, params, parentID)
	if err != nil {
		return "", false
	}
	items, ok := resource.CollectionBody(raw, q.objectType)
	if !ok {
		return "", false
	}
	for _, item := range items {
		if id, _ := item["id"].(string); id == objectID {
			return d.formatCollection(raw, q.objectType), true
		}
	}
	return "", false
}

func (d *Dispatcher) runSingletonQuery(ctx context.Context, q *query) (string, error) {
	reg := d.helper.Registry()
	switch q.action {
	case resource.ActionGet, resource.ActionList, resource.ActionFind:
		raw, err := reg.GetSingleton(ctx, q.rawObject)
		if err != nil {
			return "", err
		}
		return DumpObject(raw), nil
	case resource.ActionUpdate:
		if q.objectName == "" {
			return "", errBadQuery
		}
		raw, err := reg.UpdateSingleton(ctx, q.rawObject, map[string]any{q.rawObject: q.objectName})
		if err != nil {
			return "", err
		}
		return DumpObject(raw), nil
	}
	return "", errBadQuery
}

// formatCollection renders a list response as sorted display labels, or as a
// structured dump when the objects carry no recognizable label field
func (d *Dispatcher) formatCollection(raw json.RawMessage, objectType string) string {
	items, ok := resource.CollectionBody(raw, objectType)
	if !ok || len(items) == 0 {
		return DumpObject(raw)
	}
	if _, ok := resource.LabelField(items[0]); !ok {
		return DumpObject(raw)
	}

	names := make([]string, 0, len(items))
	for _, item := range items {
		if label, ok := resource.DisplayLabel(item); ok {
			names = append(names, label)
		}
	}
	sortFold(names)
	return d.formatList(names, objectType)
}
