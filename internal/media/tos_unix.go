//go:build unix

package media

import (
	"net"

	"golang.org/x/sys/unix"
)

// setSocketTOS applies the IP TOS byte to the socket so outbound RTP is
// marked for QoS handling.
func setSocketTOS(conn *net.UDPConn, tos int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	if err := raw.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, tos)
	}); err != nil {
		return err
	}
	return serr
}
