// knock dials each port of a knock sequence in order, which is all a
// client needs to do to open the protected port for its own address.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

func main() {
	host := flag.String("host", "127.0.0.1", "target host")
	sequence := flag.String("sequence", "1234,5678,9012", "comma-separated knock ports, in order")
	timeout := flag.Duration("timeout", time.Second, "per-knock dial timeout")
	delay := flag.Duration("delay", 100*time.Millisecond, "pause between knocks")
	flag.Parse()

	logger := log.New(os.Stderr, "knock ", log.LstdFlags)

	ports, err := parsePorts(*sequence)
	if err != nil {
		logger.Fatalf("sequence: %v", err)
	}
	if len(ports) == 0 {
		logger.Fatalf("sequence: no ports given")
	}

	for i, p := range ports {
		if i > 0 {
			time.Sleep(*delay)
		}
		knock(*host, p, *timeout)
		logger.Printf("knocked %s:%d (%d/%d)", *host, p, i+1, len(ports))
	}
}

// knock attempts a TCP connect and closes it immediately. Dial errors
// are deliberately not fatal: a refused or filtered port has still seen
// the connection attempt, and the server gives no feedback either way.
func knock(host string, port int, timeout time.Duration) {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
	if err != nil {
		return
	}
	_ = conn.Close()
}

func parsePorts(v string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > 65535 {
			return nil, fmt.Errorf("bad port %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}
