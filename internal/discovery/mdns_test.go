// ABOUTME: Tests for mDNS discovery
// ABOUTME: Tests manager defaults and service entry parsing
package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(Config{
		ServiceName: "Test Gateway",
		Port:        7000,
	})
	if mgr == nil {
		t.Fatal("expected manager to be created")
	}
	if mgr.config.Path != "/" {
		t.Errorf("expected default path /, got %q", mgr.config.Path)
	}
	mgr.Stop()
}

func TestPathFromTXT(t *testing.T) {
	tests := []struct {
		name     string
		fields   []string
		expected string
	}{
		{"present", []string{"path=/relay"}, "/relay"},
		{"among others", []string{"v=1", "path=/ws"}, "/ws"},
		{"missing", []string{"v=1"}, "/"},
		{"empty value", []string{"path="}, "/"},
		{"nil", nil, "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pathFromTXT(tt.fields); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestServerFromEntry(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       "studio._beatgate._tcp.local.",
		AddrV4:     net.ParseIP("192.168.1.20"),
		Port:       7000,
		InfoFields: []string{"path=/"},
	}

	server := serverFromEntry(entry)
	if server == nil {
		t.Fatal("expected server info")
	}
	if server.Addr() != "192.168.1.20:7000" {
		t.Errorf("unexpected addr %q", server.Addr())
	}

	if serverFromEntry(&mdns.ServiceEntry{Name: "no-ip"}) != nil {
		t.Error("expected nil for entry without IPv4 address")
	}
}
