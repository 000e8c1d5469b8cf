package utils

import (
	"fmt"
	"net"
	"strconv"
)

// VerifyPortAvailable binds host:port once and releases it. Port "0" always
// passes since the kernel picks a free port at listen time.
func VerifyPortAvailable(host string, port string) error {
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid port number: %w", err)
	}
	if portNum < 0 || portNum > 65535 {
		return fmt.Errorf("port %d out of range", portNum)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return fmt.Errorf("port %s is not available: %w", port, err)
	}
	if closeErr := ln.Close(); closeErr != nil {
		return fmt.Errorf("failed to close listener: %w", closeErr)
	}
	return nil
}
