// Package systemd renders the unit file for running the gate server.
package systemd

import (
	"fmt"
	"strings"
)

// UnitOptions parameterises the guardrace serve unit.
type UnitOptions struct {
	Binary     string // default /usr/local/bin/guardrace
	ConfigPath string
	Port       int
	StateDir   string // writable directory for the audit log and run store
	User       string
}

// ServeUnit returns a hardened unit file running "guardrace serve".
func ServeUnit(o UnitOptions) string {
	if o.Binary == "" {
		o.Binary = "/usr/local/bin/guardrace"
	}
	if o.Port == 0 {
		o.Port = 50061
	}

	exec := []string{o.Binary}
	if o.ConfigPath != "" {
		exec = append(exec, "--config", o.ConfigPath)
	}
	exec = append(exec, "serve", "--port", fmt.Sprint(o.Port))

	var b strings.Builder
	b.WriteString(`[Unit]
Description=guardrace gate server
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
`)
	if o.User != "" {
		fmt.Fprintf(&b, "User=%s\n", o.User)
	}
	fmt.Fprintf(&b, "ExecStart=%s\n", strings.Join(exec, " "))
	b.WriteString(`ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure
RestartSec=2
NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=strict
`)
	if o.StateDir != "" {
		fmt.Fprintf(&b, "ReadWritePaths=%s\n", o.StateDir)
	}
	b.WriteString(`
[Install]
WantedBy=multi-user.target
`)
	return b.String()
}
