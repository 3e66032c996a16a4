package sandbox

import (
	"fmt"
	"strconv"
	"strings"
)

// checkHostPortAllowed validates both host and port of target (formatted
// "host:port") against the whitelist.
func checkHostPortAllowed(cfg Config, target string) error {
	if cfg.Level == Unrestricted {
		return nil
	}
	host, portStr, err := splitHostPort(target)
	if err != nil {
		return err
	}
	if !hostAllowed(cfg, host) {
		return fmt.Errorf("host %q is not whitelisted", host)
	}
	if len(cfg.AllowedPorts) > 0 {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid port %q", portStr)
		}
		if !portAllowed(cfg, port) {
			return fmt.Errorf("port %d is not whitelisted", port)
		}
	}
	return nil
}

func splitHostPort(target string) (host, port string, err error) {
	idx := strings.LastIndex(target, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("target %q is not in host:port form", target)
	}
	return target[:idx], target[idx+1:], nil
}

func hostAllowed(cfg Config, host string) bool {
	for _, allowed := range cfg.AllowedHosts {
		if allowed == host || allowed == "*" {
			return true
		}
	}
	return false
}

func portAllowed(cfg Config, port int) bool {
	for _, allowed := range cfg.AllowedPorts {
		if allowed == port {
			return true
		}
	}
	return false
}

// checkCommandAllowed requires argv0 to be explicitly whitelisted, with no
// shell expansion: the whole command line is never interpreted, only the
// literal first argument is compared.
func checkCommandAllowed(cfg Config, argv0 string) error {
	if cfg.Level == Unrestricted {
		return nil
	}
	for _, allowed := range cfg.AllowedCommands {
		if allowed == argv0 {
			return nil
		}
	}
	return fmt.Errorf("command %q is not whitelisted", argv0)
}
