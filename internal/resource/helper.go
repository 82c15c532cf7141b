package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Node is the appliance's device record
type Node struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Status        string        `json:"status"`
	Approved      int           `json:"approved"`
	MACAddress    string        `json:"mac_address"`
	Description   string        `json:"description"`
	TagList       TagList       `json:"tag_list"`
	Ports         []Port        `json:"ports"`
	RuntimeStatus RuntimeStatus `json:"runtime_status"`
}

// TagList carries a node's tags as opaque objects, echoed back on update
type TagList struct {
	Tags []json.RawMessage `json:"tags"`
}

// Port is one console port on a node
type Port struct {
	Label          string `json:"label"`
	Mode           string `json:"mode"`
	ProxiedSSHURL  string `json:"proxied_ssh_url,omitempty"`
	WebTerminalURL string `json:"web_terminal_url,omitempty"`
}

// RuntimeStatus is the node's live connection state
type RuntimeStatus struct {
	ConnectionStatus string `json:"connection_status"`
	ChangeDelta      int64  `json:"change_delta"` // seconds since last status change
}

// SmartGroup is a server-stored saved filter over the node collection
type SmartGroup struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Query string `json:"query"`
}

// License is one installed license key
type License struct {
	ID  string `json:"id"`
	Raw string `json:"raw"`
}

// Entitlement describes what an installed license allows
type Entitlement struct {
	Features EntitlementFeatures `json:"features"`
}

// EntitlementFeatures carries the maintenance expiry and node allowance
type EntitlementFeatures struct {
	Maintenance int64 `json:"maintenance"` // unix epoch seconds
	Nodes       int64 `json:"nodes"`
}

// Summary is the appliance-wide node connection summary
type Summary struct {
	Connected    int
	Pending      int
	Disconnected int
}

// Helper wraps the registry with the typed operations the bot's built-in
// commands need
type Helper struct {
	client  Doer
	reg     *Registry
	baseURL string
}

// NewHelper creates the typed facade. baseURL is the appliance web root,
// used to build links into the UI
func NewHelper(client Doer, reg *Registry, baseURL string) *Helper {
	return &Helper{client: client, reg: reg, baseURL: strings.TrimRight(baseURL, "/")}
}

// URL returns the appliance web UI root
func (h *Helper) URL() string {
	return h.baseURL
}

// Registry returns the underlying collection registry
func (h *Helper) Registry() *Registry {
	return h.reg
}

func (h *Helper) listNodes(ctx context.Context, params url.Values) ([]Node, error) {
	raw, err := h.reg.List(ctx, "nodes", params, "")
	if err != nil {
		return nil, err
	}
	var body struct {
		Nodes []Node `json:"nodes"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("failed to parse node list: %w", err)
	}
	return body.Nodes, nil
}

// Ports returns every port across all nodes whose label matches, case
// insensitively
func (h *Helper) Ports(ctx context.Context, label string) ([]Port, error) {
	params := url.Values{}
	params.Set("port:label", label)
	nodes, err := h.listNodes(ctx, params)
	if err != nil {
		return nil, err
	}

	var ports []Port
	for _, node := range nodes {
		for _, port := range node.Ports {
			if strings.EqualFold(port.Label, label) {
				ports = append(ports, port)
			}
		}
	}
	return ports, nil
}

// Enrolled returns the sorted names of currently enrolled nodes
func (h *Helper) Enrolled(ctx context.Context) ([]string, error) {
	params := url.Values{}
	params.Set("config:status", "Enrolled")
	nodes, err := h.listNodes(ctx, params)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(nodes))
	for _, node := range nodes {
		names = append(names, node.Name)
	}
	sortFold(names)
	return names, nil
}

// Pending returns the name-to-id mapping of registered nodes awaiting
// approval
func (h *Helper) Pending(ctx context.Context) (map[string]string, error) {
	params := url.Values{}
	params.Set("config:status", "Registered")
	nodes, err := h.listNodes(ctx, params)
	if err != nil {
		return nil, err
	}

	nameIDs := make(map[string]string)
	for _, node := range nodes {
		if node.Approved == 0 {
			nameIDs[node.Name] = node.ID
		}
	}
	return nameIDs, nil
}

// NodeID resolves an enrolled node's name to its id
func (h *Helper) NodeID(ctx context.Context, name string) (string, error) {
	params := url.Values{}
	params.Set("config:status", "Enrolled")
	nodes, err := h.listNodes(ctx, params)
	if err != nil {
		return "", err
	}
	for _, node := range nodes {
		if node.Name == name {
			return node.ID, nil
		}
	}
	return "", fmt.Errorf("%w: node %q", ErrNotFound, name)
}

// PortLabels returns the sorted console-server port labels of one node, or
// of the whole fleet when name is empty
func (h *Helper) PortLabels(ctx context.Context, nodeName string) ([]string, error) {
	params := url.Values{}
	if nodeName != "" {
		params.Set("config:name", nodeName)
	}
	nodes, err := h.listNodes(ctx, params)
	if err != nil {
		return nil, err
	}

	var labels []string
	for _, node := range nodes {
		for _, port := range node.Ports {
			if port.Mode == "consoleServer" {
				labels = append(labels, port.Label)
			}
		}
	}
	sortFold(labels)
	return labels, nil
}

// Summary fetches the connection summary counters
func (h *Helper) Summary(ctx context.Context) (Summary, error) {
	raw, err := h.client.Get(ctx, "stats/nodes/connection_summary", nil)
	if err != nil {
		return Summary{}, err
	}

	var body struct {
		ConnectionSummary []struct {
			Status string      `json:"status"`
			Count  json.Number `json:"count"`
		} `json:"connectionSummary"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Summary{}, fmt.Errorf("failed to parse connection summary: %w", err)
	}

	var s Summary
	for _, conn := range body.ConnectionSummary {
		n, _ := conn.Count.Int64()
		switch conn.Status {
		case "connected":
			s.Connected = int(n)
		case "pending":
			s.Pending = int(n)
		case "disconnected":
			s.Disconnected = int(n)
		}
	}
	return s, nil
}

// ApproveNodes approves registered nodes by name. Per-item failures are
// collected; the batch never aborts early
func (h *Helper) ApproveNodes(ctx context.Context, names []string) (approved []string, errs []error) {
	params := url.Values{}
	params.Set("config:status", "Registered")
	nodes, err := h.listNodes(ctx, params)
	if err != nil {
		return nil, []error{err}
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	for _, node := range nodes {
		if !wanted[node.Name] {
			continue
		}
		body := map[string]any{
			"node": map[string]any{
				"name":        node.Name,
				"mac_address": node.MACAddress,
				"description": node.Description,
				"approved":    1,
				"tags":        node.TagList.Tags,
			},
		}
		if _, err := h.reg.Update(ctx, "nodes", node.ID, body, ""); err != nil {
			errs = append(errs, fmt.Errorf("error approving %q: %w", node.Name, err))
			continue
		}
		approved = append(approved, node.Name)
	}
	return approved, errs
}

// DeleteNodes unenrolls nodes by name. Per-item failures are collected; the
// batch never aborts early
func (h *Helper) DeleteNodes(ctx context.Context, names []string) (deleted []string, errs []error) {
	nodes, err := h.listNodes(ctx, nil)
	if err != nil {
		return nil, []error{err}
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	for _, node := range nodes {
		if !wanted[node.Name] {
			continue
		}
		if _, err := h.reg.Delete(ctx, "nodes", node.ID, ""); err != nil {
			errs = append(errs, fmt.Errorf("error deleting %q: %w", node.Name, err))
			continue
		}
		deleted = append(deleted, node.Name)
	}
	return deleted, errs
}

func (h *Helper) listSmartGroups(ctx context.Context) ([]SmartGroup, error) {
	raw, err := h.reg.List(ctx, "smartgroups", nil, "")
	if err != nil {
		return nil, err
	}
	var body struct {
		SmartGroups []SmartGroup `json:"smartgroups"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("failed to parse smartgroup list: %w", err)
	}
	return body.SmartGroups, nil
}

// SmartGroups returns the sorted smartgroup names
func (h *Helper) SmartGroups(ctx context.Context) ([]string, error) {
	groups, err := h.listSmartGroups(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	sortFold(names)
	return names, nil
}

// SmartGroupQuery resolves a smartgroup's saved node filter by name
func (h *Helper) SmartGroupQuery(ctx context.Context, name string) (string, error) {
	groups, err := h.listSmartGroups(ctx)
	if err != nil {
		return "", err
	}
	for _, g := range groups {
		if strings.EqualFold(g.Name, name) {
			return g.Query, nil
		}
	}
	return "", fmt.Errorf("%w: smartgroup %q", ErrNotFound, name)
}

// SmartGroupNodes returns the sorted names of nodes matched by a
// smartgroup's saved filter
func (h *Helper) SmartGroupNodes(ctx context.Context, name string) ([]string, error) {
	query, err := h.SmartGroupQuery(ctx, name)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("json", query)
	nodes, err := h.listNodes(ctx, params)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(nodes))
	for _, node := range nodes {
		names = append(names, node.Name)
	}
	sortFold(names)
	return names, nil
}

// Licenses returns the installed license keys
func (h *Helper) Licenses(ctx context.Context) ([]License, error) {
	raw, err := h.reg.List(ctx, "licenses", nil, "")
	if err != nil {
		return nil, err
	}
	var body struct {
		Licenses []License `json:"licenses"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("failed to parse license list: %w", err)
	}
	return body.Licenses, nil
}

// Entitlements returns what the installed licenses allow
func (h *Helper) Entitlements(ctx context.Context) ([]Entitlement, error) {
	raw, err := h.reg.List(ctx, "entitlements", nil, "")
	if err != nil {
		return nil, err
	}
	var body struct {
		Entitlements []Entitlement `json:"entitlements"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("failed to parse entitlement list: %w", err)
	}
	return body.Entitlements, nil
}

// IsEvaluation reports whether the appliance runs without any real license.
// Lookup failures count as evaluation mode
func (h *Helper) IsEvaluation(ctx context.Context) bool {
	licenses, err := h.Licenses(ctx)
	if err != nil {
		return true
	}
	for _, l := range licenses {
		if len(l.Raw) > 0 {
			return false
		}
	}
	return true
}

// ObjectID resolves a generic object's name to its id by listing the
// collection and matching on the display-label priority fields. The parent
// reference is resolved first when present
func (h *Helper) ObjectID(ctx context.Context, objectType, objectName, parentType, parentName string) (string, error) {
	var parentID string
	if parentType != "" && parentName != "" {
		id, err := h.ObjectID(ctx, parentType, parentName, "", "")
		if err != nil {
			return "", err
		}
		parentID = id
	}
	return h.ObjectIDWithin(ctx, objectType, objectName, nil, parentID)
}

// ObjectIDWithin resolves a name inside an already-resolved parent scope.
// params narrow the listing, so a pre-filtered query only matches objects
// the filter admits
func (h *Helper) ObjectIDWithin(ctx context.Context, objectType, objectName string, params url.Values, parentID string) (string, error) {
	raw, err := h.reg.List(ctx, objectType, params, parentID)
	if err != nil {
		return "", err
	}

	items, ok := CollectionBody(raw, objectType)
	if !ok {
		return "", fmt.Errorf("%w: %s %q", ErrNotFound, objectType, objectName)
	}
	for _, item := range items {
		label, ok := DisplayLabel(item)
		if !ok || label != objectName {
			continue
		}
		if id, ok := item["id"].(string); ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %s %q", ErrNotFound, objectType, objectName)
}

// Monitor builds a plain-text report mirroring the web UI dashboard:
// enrolled nodes with status and links, the connection summary, and the
// licensing compliance state
func (h *Helper) Monitor(ctx context.Context) (string, error) {
	nodes, err := h.listNodes(ctx, nil)
	if err != nil {
		return "", err
	}
	licenses, err := h.Licenses(ctx)
	if err != nil {
		return "", err
	}
	entitlements, err := h.Entitlements(ctx)
	if err != nil {
		return "", err
	}
	summary, err := h.Summary(ctx)
	if err != nil {
		return "", err
	}

	now := time.Now().Unix()

	var b strings.Builder
	b.WriteString("Enrolled nodes:\n")
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	for _, node := range nodes {
		if node.Status != "Enrolled" {
			continue
		}
		fmt.Fprintf(&b, ">  %s:\n", node.Name)
		fmt.Fprintf(&b, ">    %s: last status change %s ago\n",
			node.RuntimeStatus.ConnectionStatus, FormatSeconds(node.RuntimeStatus.ChangeDelta))
		fmt.Fprintf(&b, ">    Web UI: <%s/%s>\n", h.baseURL, node.ID)
	}

	b.WriteString("\nCurrent node status:\n")
	fmt.Fprintf(&b, ">  Connected: %d\n", summary.Connected)
	fmt.Fprintf(&b, ">  Pending: %d\n", summary.Pending)
	fmt.Fprintf(&b, ">  Disconnected: %d\n", summary.Disconnected)

	var maxDevices, expiryEpoch int64
	for _, e := range entitlements {
		if e.Features.Maintenance >= now {
			maxDevices += e.Features.Nodes
		}
		if e.Features.Maintenance > expiryEpoch {
			expiryEpoch = e.Features.Maintenance
		}
	}
	var devices int64
	for _, node := range nodes {
		if node.Status == "Enrolled" {
			devices++
		}
	}
	status := "In Compliance"
	if devices > maxDevices || expiryEpoch < now {
		status = "Not in Compliance"
	}

	b.WriteString("\nLicensing information:\n")
	fmt.Fprintf(&b, ">  Installed licenses: %d\n", len(licenses))
	fmt.Fprintf(&b, ">  Supported devices: %d / %d\n", devices, maxDevices)
	fmt.Fprintf(&b, ">  Expiry date: %s\n", time.Unix(expiryEpoch, 0).Format("01/02/2006"))
	fmt.Fprintf(&b, ">  Status: %s", status)

	return b.String(), nil
}

// FormatSeconds renders an elapsed-seconds count in its largest sensible
// unit
func FormatSeconds(sec int64) string {
	d := time.Duration(sec) * time.Second
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%d days", int(d.Hours())/24)
	case d >= time.Hour:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	case d >= time.Minute:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	return fmt.Sprintf("%d seconds", sec)
}

// sortFold sorts strings case-insensitively, matching the web UI ordering
func sortFold(items []string) {
	sort.Slice(items, func(i, j int) bool {
		return strings.ToLower(items[i]) < strings.ToLower(items[j])
	})
}
