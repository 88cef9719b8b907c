//go:build linux

package ipc

import (
	"net"

	"golang.org/x/sys/unix"
)

// peerCredentials decodes the kernel's fixed-size SO_PEERCRED record for the
// process on the far end of a unix domain socket.
func peerCredentials(conn *net.UnixConn) (*Credentials, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, err
	}

	var ucred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		ucred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return nil, err
	}
	if credErr != nil {
		return nil, credErr
	}

	return &Credentials{
		PID: ucred.Pid,
		UID: int32(ucred.Uid),
		GID: int32(ucred.Gid),
	}, nil
}
