package handler

import (
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const unknownIP = "unknown"

// ClientIP resolves the caller address from proxy headers, most trusted first:
// CF-Connecting-IP, the first X-Forwarded-For hop, X-Real-IP, then the socket.
// A source that does not hold an IP address is skipped. The result is a
// canonical copy, never a view into the request buffer.
func ClientIP(c *fiber.Ctx) string {
	first, _, _ := strings.Cut(c.Get(fiber.HeaderXForwardedFor), ",")

	for _, candidate := range []string{
		c.Get("CF-Connecting-IP"),
		first,
		c.Get("X-Real-IP"),
		c.IP(),
	} {
		if ip := parseIP(candidate); ip != nil {
			return ip.String()
		}
	}
	return unknownIP
}

func parseIP(raw string) net.IP {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ip := net.ParseIP(raw); ip != nil {
		return ip
	}
	// Some proxies append the port.
	if host, _, err := net.SplitHostPort(raw); err == nil {
		return net.ParseIP(host)
	}
	return nil
}
