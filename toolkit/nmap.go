package toolkit

import (
	"context"
	"strconv"
	"strings"

	"github.com/zero-day-ai/reconpipe/tool"
)

// Service is one port line of nmap output.
type Service struct {
	Port    int    `json:"port"`
	Proto   string `json:"proto"`
	State   string `json:"state"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// Host groups the services listed under a "Host:" line.
type Host struct {
	Hostname string    `json:"hostname"`
	Services []Service `json:"services"`
}

// ParseNmap parses the condensed human-readable format:
//
//	Host: api.example.com
//	  80/tcp    open  http    Apache httpd 2.4.41
//
// Service lines before the first Host line and lines with fewer than four
// fields are ignored. Unparseable port numbers become 0.
func ParseNmap(text string) []Host {
	hosts := []Host{}
	var current *Host

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "Host:") {
			if current != nil {
				hosts = append(hosts, *current)
			}
			current = &Host{
				Hostname: strings.TrimSpace(strings.TrimPrefix(line, "Host:")),
				Services: []Service{},
			}
			continue
		}
		if current == nil || !strings.Contains(line, "/") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		portStr, proto, found := strings.Cut(fields[0], "/")
		if !found || proto == "" {
			proto = "tcp"
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			port = 0
		}
		current.Services = append(current.Services, Service{
			Port:    port,
			Proto:   proto,
			State:   fields[1],
			Service: fields[2],
			Version: strings.Join(fields[3:], " "),
		})
	}
	if current != nil {
		hosts = append(hosts, *current)
	}
	return hosts
}

// ParseNmapTool takes {"text"} and returns {"hosts"}.
func ParseNmapTool() tool.Tool {
	return tool.MustNew(tool.NewConfig().
		SetName("parse_nmap").
		SetDescription("Parse nmap scan output into structured host/service data").
		SetInvokeFunc(func(_ context.Context, in map[string]any) (map[string]any, error) {
			hosts := ParseNmap(tool.OptionalString(in, "text", ""))
			return map[string]any{"hosts": toJSON(hosts)}, nil
		}))
}
