package knet

import (
	"net"

	"github.com/gamevidea/binary/buffer"

	"github.com/packetflow/knet/config"
)

// Dial opens a connection to addr using config.Default's tuning values,
// running a dedicated single-connection Worker. For listen-side,
// many-connection multiplexing, see Listen. See DialWithConfig to override
// the defaults.
func Dial(addr string, log Logger) (*Connection, error) {
	return DialWithConfig(addr, config.Default(), log)
}

// DialWithConfig is Dial with an explicit, possibly overridden Config
// governing the resulting connection.
func DialWithConfig(addr string, cfg config.Config, log Logger) (*Connection, error) {
	if log == nil {
		log = defaultLogger
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	socket, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, err
	}

	c := newConnection(connectedSender{socket}, udpAddr, log, cfg)
	c.setState(OK)

	w := NewWorker(log)
	w.Register(c)
	go w.Run()

	go dialReadLoop(socket, udpAddr, w, c)
	go func() {
		<-c.closed
		socket.Close()
		w.Stop()
	}()

	return c, nil
}

// connectedSender adapts a connected *net.UDPConn (one created via DialUDP)
// to the packetSender contract: such a socket rejects WriteTo's address
// argument, so it is ignored in favor of the peer already fixed at Dial.
type connectedSender struct {
	*net.UDPConn
}

func (s connectedSender) WriteTo(b []byte, _ net.Addr) (int, error) {
	return s.UDPConn.Write(b)
}

// dialReadLoop exits once socket is closed. If that close was not initiated
// locally (c isn't already Closed), the read failure itself is the only
// signal this side has that the peer went away, so it drives the connection
// to PeerClosed; PeerClosed is not itself terminal, so the connection later
// closes for real through the ordinary connection-lost timeout once no more
// inbound traffic arrives.
func dialReadLoop(socket *net.UDPConn, addr net.Addr, w *Worker, c *Connection) {
	for {
		buf := recvBufferPool.Get().(*buffer.Buffer)
		n, err := socket.Read(buf.Slice())
		if err != nil {
			if !c.isClosed() {
				c.setState(PeerClosed)
			}
			return
		}
		buf.Resize(n)
		data := append([]byte(nil), buf.Bytes()...)
		recvBufferPool.Put(buf)
		w.Dispatch(addr, data)
	}
}
