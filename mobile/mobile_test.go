package mobile

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestStartStopCycle(t *testing.T) {
	for round := 0; round < 2; round++ {
		done := make(chan error, 1)
		go func() { done <- Start(0) }()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("round %d start: %v", round, err)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("round %d: start did not return", round)
		}
		if err := Start(0); err == nil {
			t.Fatal("second start accepted")
		}

		deadline := time.Now().Add(2 * time.Second)
		for !IsRunning() {
			if time.Now().After(deadline) {
				t.Fatalf("round %d: game never ran", round)
			}
			time.Sleep(5 * time.Millisecond)
		}
		if s := GetStats(); !strings.Contains(s, `"state":"running"`) {
			t.Fatalf("stats = %s", s)
		}

		if err := Stop(); err != nil {
			t.Fatalf("round %d stop: %v", round, err)
		}
		if err := Stop(); err != nil {
			t.Fatalf("round %d second stop: %v", round, err)
		}
		if IsRunning() || GetStats() != "{}" {
			t.Fatalf("round %d: still running after stop", round)
		}
	}
}

func TestPickLANAddr(t *testing.T) {
	ipNet := func(s string) net.Addr {
		ip, n, err := net.ParseCIDR(s)
		if err != nil {
			t.Fatal(err)
		}
		n.IP = ip
		return n
	}
	cases := []struct {
		name  string
		addrs []net.Addr
		want  string
	}{
		{"none", nil, "unknown"},
		{"loopback only", []net.Addr{ipNet("127.0.0.1/8"), ipNet("::1/128")}, "unknown"},
		{"private", []net.Addr{ipNet("127.0.0.1/8"), ipNet("192.168.1.20/24")}, "192.168.1.20"},
		{"private beats public", []net.Addr{ipNet("203.0.113.5/24"), ipNet("10.0.0.7/8")}, "10.0.0.7"},
		{"public fallback", []net.Addr{ipNet("169.254.3.3/16"), ipNet("203.0.113.5/24")}, "203.0.113.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := pickLANAddr(tc.addrs); got != tc.want {
				t.Fatalf("pickLANAddr = %q, want %q", got, tc.want)
			}
		})
	}
}
