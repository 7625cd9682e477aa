package channel

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// Context selects how a message thread binds its socket.
type Context string

const (
	// Unix domain socket, reachable from the same node only.
	ContextLocal Context = "local"
	// TCP socket, socket name is a host:port pair.
	ContextNetwork Context = "network"
)

var (
	ErrChannel        = errors.New("channel error")
	ErrAlreadyStarted = errors.New("message thread already started")
)

// Endpoint is a resolved listen address.
type Endpoint struct {
	Network string
	Address string
}

func (e Endpoint) String() string {
	return e.Network + "://" + e.Address
}

// Resolves a socket name within a context into a listen address.
//
// Local socket names that are not absolute paths are placed in the
// temporary directory with a .sock suffix.
func ResolveEndpoint(socketName string, context Context) (Endpoint, error) {
	if socketName == "" {
		return Endpoint{}, fmt.Errorf("%w: empty socket name", ErrChannel)
	}

	switch context {
	case ContextLocal, "":
		path := socketName
		if !filepath.IsAbs(path) {
			path = filepath.Join(os.TempDir(), socketName+".sock")
		}
		return Endpoint{Network: "unix", Address: path}, nil

	case ContextNetwork:
		if _, _, err := net.SplitHostPort(socketName); err != nil {
			return Endpoint{}, fmt.Errorf("%w: network socket name %q: %v", ErrChannel, socketName, err)
		}
		return Endpoint{Network: "tcp", Address: socketName}, nil

	default:
		return Endpoint{}, fmt.Errorf("%w: unknown context %q", ErrChannel, context)
	}
}

func (e Endpoint) listen() (net.Listener, Endpoint, error) {
	if e.Network == "unix" {
		// Stale socket left behind by a crashed run
		if err := os.Remove(e.Address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, e, err
		}
	}

	listener, err := net.Listen(e.Network, e.Address)
	if err != nil {
		return nil, e, err
	}

	if unixListener, ok := listener.(*net.UnixListener); ok {
		unixListener.SetUnlinkOnClose(true)
		return listener, e, nil
	}

	// Port 0 resolves to the port actually bound
	return listener, Endpoint{Network: e.Network, Address: listener.Addr().String()}, nil
}
