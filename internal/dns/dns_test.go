package dns

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/BioHazard786/Warpchat/internal/logging"
)

func TestPickPrefersIPv4(t *testing.T) {
	ip, err := pick([]string{"2001:db8::1", "192.0.2.7"})
	if err != nil || ip != "192.0.2.7" {
		t.Errorf("pick = %q, %v", ip, err)
	}
	ip, _ = pick([]string{"2001:db8::1"})
	if ip != "2001:db8::1" {
		t.Errorf("pick v6 only = %q", ip)
	}
	if _, err := pick(nil); !errors.Is(err, ErrNoAddress) {
		t.Errorf("pick(nil) = %v", err)
	}
}

func TestLookupLiteralIP(t *testing.T) {
	r := NewResolver(logging.Discard())
	r.Servers = nil

	ip, err := r.Lookup(context.Background(), "127.0.0.1")
	if err != nil || ip != "127.0.0.1" {
		t.Errorf("Lookup = %q, %v", ip, err)
	}
}

func TestDialContextLocalhost(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		if c, err := ln.Accept(); err == nil {
			c.Close()
		}
	}()

	r := NewResolver(logging.Discard())
	conn, err := r.DialContext(context.Background(), "tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	conn.Close()
}
