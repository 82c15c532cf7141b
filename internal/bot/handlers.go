package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lanternops/lanternbot/internal/resource"
	"github.com/lanternops/lanternbot/pkg/types"
)

func (d *Dispatcher) handleMonitor(ctx context.Context, scope string, cmd types.Command) (string, error) {
	return d.helper.Monitor(ctx)
}

// sshURLs rewrites each port's proxied ssh link to carry the requesting
// user's name instead of the appliance service account
func sshURLs(ports []resource.Port, username string) []string {
	var urls []string
	for _, port := range ports {
		if port.ProxiedSSHURL == "" {
			continue
		}
		link := port.ProxiedSSHURL
		if at := strings.Index(link, "@"); at >= 0 && strings.HasPrefix(link, "ssh://") {
			link = "ssh://" + username + link[at:]
		}
		urls = append(urls, "<"+link+">")
	}
	return urls
}

func (d *Dispatcher) webURLs(ports []resource.Port) []string {
	var urls []string
	for _, port := range ports {
		if port.WebTerminalURL == "" {
			continue
		}
		urls = append(urls, "<"+d.helper.URL()+"/"+port.WebTerminalURL+">")
	}
	return urls
}

func (d *Dispatcher) handlePortSSH(ctx context.Context, scope string, cmd types.Command) (string, error) {
	ports, err := d.helper.Ports(ctx, scope)
	if err != nil {
		return "", err
	}
	urls := sshURLs(ports, cmd.Username)
	if len(urls) == 0 {
		return ":x: Problem to create ssh link.", nil
	}
	return strings.Join(urls, "\n"), nil
}

func (d *Dispatcher) handlePortWeb(ctx context.Context, scope string, cmd types.Command) (string, error) {
	ports, err := d.helper.Ports(ctx, scope)
	if err != nil {
		return "", err
	}
	urls := d.webURLs(ports)
	if len(urls) == 0 {
		return ":x: Problem to create web link.", nil
	}
	return strings.Join(urls, "\n"), nil
}

func (d *Dispatcher) handlePort(ctx context.Context, scope string, cmd types.Command) (string, error) {
	ports, err := d.helper.Ports(ctx, scope)
	if err != nil {
		return "", err
	}
	ssh := sshURLs(ports, cmd.Username)
	web := d.webURLs(ports)

	var urls []string
	for i := 0; i < len(ssh) && i < len(web); i++ {
		urls = append(urls, ssh[i], web[i])
	}
	if len(urls) == 0 {
		return ":x: Device not found. Unable to create ssh link and web link.", nil
	}
	return strings.Join(urls, "\n"), nil
}

func (d *Dispatcher) handlePortLabels(ctx context.Context, scope string, cmd types.Command) (string, error) {
	labels, err := d.helper.PortLabels(ctx, scope)
	if err != nil {
		return "", err
	}
	if len(labels) == 0 {
		return "Nothing to see here.", nil
	}
	return d.formatList(labels, ""), nil
}

func (d *Dispatcher) handleSummary(ctx context.Context, scope string, cmd types.Command) (string, error) {
	s, err := d.helper.Summary(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Nodes' status information:\n"+
		"> Connected: %d\n"+
		"> Disconnected: %d\n"+
		"> Pending: %d", s.Connected, s.Disconnected, s.Pending), nil
}

// handleWebUI links to the appliance web UI, or to a node's proxied UI when
// a node name is given. An unresolvable name is passed through as an id
func (d *Dispatcher) handleWebUI(ctx context.Context, scope string, cmd types.Command) (string, error) {
	if scope == "" {
		return "<" + d.helper.URL() + ">", nil
	}
	id, err := d.helper.NodeID(ctx, scope)
	if err != nil {
		id = scope
	}
	return "<" + d.helper.URL() + "/" + id + ">", nil
}

func (d *Dispatcher) handleEnrolled(ctx context.Context, scope string, cmd types.Command) (string, error) {
	names, err := d.helper.Enrolled(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "No created node.", nil
	}
	return d.formatList(names, ""), nil
}

// handleApprove reports one line per requested node, in input order, no
// matter how many of them fail
func (d *Dispatcher) handleApprove(ctx context.Context, scope string, cmd types.Command) (string, error) {
	names := strings.Fields(scope)
	if len(names) == 0 {
		return "Please name at least one node to approve.", nil
	}

	approved, errs := d.helper.ApproveNodes(ctx, names)
	for _, err := range errs {
		d.log.WithCommandID(cmd.ID).Error("%v", err)
	}

	ok := make(map[string]bool, len(approved))
	for _, name := range approved {
		ok[name] = true
	}

	lines := make([]string, 0, len(names))
	for _, name := range names {
		if ok[name] {
			lines = append(lines, name+" :white_check_mark: Success: Node approved.")
		} else {
			lines = append(lines, name+" :x: Error: Node could not be approved. Please check it and try again.")
		}
	}
	return d.formatList(lines, ""), nil
}

func (d *Dispatcher) handleDelete(ctx context.Context, scope string, cmd types.Command) (string, error) {
	names := strings.Fields(scope)
	if len(names) == 0 {
		return "Please name at least one node to unenroll.", nil
	}

	deleted, errs := d.helper.DeleteNodes(ctx, names)
	for _, err := range errs {
		d.log.WithCommandID(cmd.ID).Error("%v", err)
	}

	ok := make(map[string]bool, len(deleted))
	for _, name := range deleted {
		ok[name] = true
	}

	lines := make([]string, 0, len(names))
	for _, name := range names {
		if ok[name] {
			lines = append(lines, ":white_check_mark: Success: "+name+" unenrolled.")
		} else {
			lines = append(lines, ":x: Error: It was not possible to unenroll "+name+".")
		}
	}
	return d.formatList(lines, ""), nil
}

func (d *Dispatcher) handleSmartGroups(ctx context.Context, scope string, cmd types.Command) (string, error) {
	names, err := d.helper.SmartGroups(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "No smart groups found.", nil
	}
	return d.formatList(names, ""), nil
}

func (d *Dispatcher) handleSmartGroupNodes(ctx context.Context, scope string, cmd types.Command) (string, error) {
	if scope == "" {
		return "Please name a smartgroup.", nil
	}
	names, err := d.helper.SmartGroupNodes(ctx, scope)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return fmt.Sprintf("No nodes were found for smart group %s.", scope), nil
		}
		return "", err
	}
	if len(names) == 0 {
		return fmt.Sprintf("No nodes were found for smart group %s.", scope), nil
	}
	return d.formatList(names, ""), nil
}

func (d *Dispatcher) handleHelp(ctx context.Context, scope string, cmd types.Command) (string, error) {
	return d.helpText(), nil
}
