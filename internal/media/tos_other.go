//go:build !unix

package media

import "net"

func setSocketTOS(conn *net.UDPConn, tos int) error {
	// QoS marking is not supported on this platform.
	return nil
}
