package minipar

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// framer reads and writes whole messages on a stream connection.
type framer interface {
	// ReadMessage returns io.EOF once the peer has closed the connection.
	ReadMessage() (string, error)
	WriteMessage(msg string) error
}

func newFramer(cfg ChannelConfig, rw io.ReadWriter) framer {
	if cfg.Framing == FramingRaw {
		return &rawFramer{rw: rw, size: cfg.ReadBufferSize}
	}
	return &lengthFramer{rw: rw, max: cfg.MaxMessageSize}
}

// lengthFramer prefixes each message with its byte length as a 4-byte
// big-endian unsigned integer.
type lengthFramer struct {
	rw  io.ReadWriter
	max int
}

func (f *lengthFramer) ReadMessage() (string, error) {
	var header [4]byte
	if _, err := io.ReadFull(f.rw, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return "", fmt.Errorf("truncated message header: %w", err)
		}
		return "", err
	}

	size := binary.BigEndian.Uint32(header[:])
	if uint64(size) > uint64(f.max) {
		return "", fmt.Errorf("message of %d bytes exceeds the limit of %d bytes", size, f.max)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(f.rw, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return "", fmt.Errorf("truncated message body: %w", err)
	}
	return string(payload), nil
}

func (f *lengthFramer) WriteMessage(msg string) error {
	if len(msg) > f.max {
		return fmt.Errorf("message of %d bytes exceeds the limit of %d bytes", len(msg), f.max)
	}

	buf := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(buf, uint32(len(msg)))
	copy(buf[4:], msg)
	_, err := f.rw.Write(buf)
	return err
}

// rawFramer has no framing: one read call's worth of bytes is a message.
// Payloads longer than a single packet may be split or merged.
type rawFramer struct {
	rw   io.ReadWriter
	size int
}

func (f *rawFramer) ReadMessage() (string, error) {
	buf := make([]byte, f.size)
	for {
		n, err := f.rw.Read(buf)
		if n > 0 {
			return string(buf[:n]), nil
		}
		if err != nil {
			return "", err
		}
	}
}

func (f *rawFramer) WriteMessage(msg string) error {
	_, err := io.WriteString(f.rw, msg)
	return err
}

// channelConn is an open client channel.
type channelConn struct {
	name   string
	conn   net.Conn
	framer framer
	// pending holds messages received but not yet consumed by receive(),
	// such as the server's greeting.
	pending []string
}

func (c *channelConn) next() (string, error) {
	if len(c.pending) > 0 {
		msg := c.pending[0]
		c.pending = c.pending[1:]
		return msg, nil
	}
	return c.framer.ReadMessage()
}

// connTable maps channel names to their open connections. Each executor
// owns one; PAR branches get their own, empty table.
type connTable struct {
	mu    sync.Mutex
	conns map[string]*channelConn
}

func newConnTable() *connTable {
	return &connTable{conns: make(map[string]*channelConn)}
}

// put registers c, closing any connection previously held under its name.
func (t *connTable) put(c *channelConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, exists := t.conns[c.name]; exists {
		prev.conn.Close()
	}
	t.conns[c.name] = c
}

func (t *connTable) get(name string) (*channelConn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.conns[name]
	return c, ok
}

func (t *connTable) remove(name string) (*channelConn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.conns[name]
	delete(t.conns, name)
	return c, ok
}

func (t *connTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for name, c := range t.conns {
		c.conn.Close()
		delete(t.conns, name)
	}
}

// channelAddress joins an evaluated host and port, ignoring any quotes
// left around them.
func channelAddress(host, port Value) string {
	h := strings.Trim(host.String(), `"'`)
	p := strings.Trim(port.String(), `"'`)
	return net.JoinHostPort(h, p)
}

// dialChannel connects to addr, retrying until the dial timeout so that a
// client may be declared before its server is listening.
func dialChannel(cfg ChannelConfig, addr string) (net.Conn, error) {
	deadline := time.Now().Add(cfg.DialTimeout.Duration)
	for {
		conn, err := net.DialTimeout("tcp", addr, cfg.DialTimeout.Duration)
		if err == nil {
			return conn, nil
		}
		if time.Now().Add(cfg.DialRetryInterval.Duration).After(deadline) {
			return nil, err
		}
		time.Sleep(cfg.DialRetryInterval.Duration)
	}
}

func (ex *Executor) channelPrologue(line int, name string, host, port Expr) (string, error) {
	if !ex.engine.Permissions.Net {
		return "", runtimeErr(line, ErrChannel, "cannot open channel %s, network access is not permitted", name)
	}

	hostVal, err := ex.eval(host)
	if err != nil {
		return "", err
	}
	portVal, err := ex.eval(port)
	if err != nil {
		return "", err
	}
	if _, err := strconv.Atoi(strings.Trim(portVal.String(), `"'`)); err != nil {
		return "", runtimeErr(line, ErrChannel, "invalid port %s for channel %s", portVal, name)
	}
	return channelAddress(hostVal, portVal), nil
}

// declareClient opens the outbound connection of a c_channel declaration.
func (ex *Executor) declareClient(n ClientChannelNode) error {
	addr, err := ex.channelPrologue(n.line, n.name, n.host, n.port)
	if err != nil {
		return err
	}

	cfg := ex.engine.Config.Channel
	conn, err := dialChannel(cfg, addr)
	if err != nil {
		return runtimeErr(n.line, err, "could not connect channel %s to %s: %s", n.name, addr, err)
	}

	c := &channelConn{
		name:   n.name,
		conn:   conn,
		framer: newFramer(cfg, conn),
	}
	if cfg.Framing == FramingLength {
		greeting, err := c.framer.ReadMessage()
		if err != nil {
			conn.Close()
			return runtimeErr(n.line, err, "channel %s did not receive a greeting from %s: %s", n.name, addr, err)
		}
		c.pending = append(c.pending, greeting)
	}

	if ex.engine.Debug.Exec {
		LogDebugf("channel %s connected to %s", n.name, addr)
	}
	ex.conns.put(c)
	return nil
}

// serveChannel runs an s_channel declaration: it accepts clients one at
// a time and answers each message with the result of the handler.
func (ex *Executor) serveChannel(n ServerChannelNode) error {
	addr, err := ex.channelPrologue(n.line, n.name, n.host, n.port)
	if err != nil {
		return err
	}
	desc, err := ex.eval(n.description)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return runtimeErr(n.line, err, "channel %s could not listen on %s: %s", n.name, addr, err)
	}
	defer ln.Close()

	cfg := ex.engine.Config.Channel
	for served := 0; cfg.MaxConnections < 0 || served < cfg.MaxConnections; served++ {
		conn, err := ln.Accept()
		if err != nil {
			return runtimeErr(n.line, err, "channel %s could not accept on %s: %s", n.name, addr, err)
		}
		if ex.engine.Debug.Exec {
			LogDebugf("channel %s accepted %s", n.name, conn.RemoteAddr())
		}

		err = ex.serveConn(n, conn, desc.String())
		conn.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (ex *Executor) serveConn(n ServerChannelNode, conn net.Conn, desc string) error {
	cfg := ex.engine.Config.Channel
	f := newFramer(cfg, conn)

	if cfg.Framing == FramingLength || desc != "" {
		if err := f.WriteMessage(desc); err != nil {
			return runtimeErr(n.line, err, "channel %s could not send its description: %s", n.name, err)
		}
	}

	for {
		msg, err := f.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return runtimeErr(n.line, err, "channel %s failed to read: %s", n.name, err)
		}

		result, err := ex.callByName(n.handler, []Value{StringValue(msg)}, n.line)
		if err != nil {
			return err
		}

		reply := result.String()
		if _, isNull := result.(NullValue); isNull {
			reply = ""
		}
		if err := f.WriteMessage(reply); err != nil {
			return runtimeErr(n.line, err, "channel %s failed to reply: %s", n.name, err)
		}
	}
}

func channelArg(fnName string, in []Value) (string, error) {
	if len(in) < 1 {
		return "", Err{reason: ErrRuntime, message: fmt.Sprintf("%s() takes a channel name argument", fnName), cause: ErrChannel}
	}
	name, isString := in[0].(StringValue)
	if !isString {
		return "", Err{
			reason:  ErrRuntime,
			message: fmt.Sprintf("%s() takes a channel name as its first argument, got %s", fnName, in[0]),
			cause:   ErrChannel,
		}
	}
	return string(name), nil
}

func (ex *Executor) openChannel(fnName, name string) (*channelConn, error) {
	c, ok := ex.conns.get(name)
	if !ok {
		return nil, Err{
			reason:  ErrRuntime,
			message: fmt.Sprintf("%s(): channel %s is not open", fnName, name),
			cause:   ErrChannel,
		}
	}
	return c, nil
}

func mpSend(ex *Executor, in []Value) (Value, error) {
	name, err := channelArg("send", in)
	if err != nil {
		return nil, err
	}
	if len(in) != 2 {
		return nil, Err{reason: ErrRuntime, message: "send() takes a channel and 1 message argument", cause: ErrChannel}
	}
	c, err := ex.openChannel("send", name)
	if err != nil {
		return nil, err
	}

	if err := c.framer.WriteMessage(in[1].String()); err != nil {
		return nil, Err{reason: ErrRuntime, message: fmt.Sprintf("send() on channel %s failed: %s", name, err), cause: err}
	}
	reply, err := c.framer.ReadMessage()
	if err != nil {
		return nil, Err{reason: ErrRuntime, message: fmt.Sprintf("send() on channel %s got no reply: %s", name, err), cause: err}
	}
	return StringValue(reply), nil
}

func mpReceive(ex *Executor, in []Value) (Value, error) {
	name, err := channelArg("receive", in)
	if err != nil {
		return nil, err
	}
	c, err := ex.openChannel("receive", name)
	if err != nil {
		return nil, err
	}

	msg, err := c.next()
	if err != nil {
		return nil, Err{reason: ErrRuntime, message: fmt.Sprintf("receive() on channel %s failed: %s", name, err), cause: err}
	}
	return StringValue(msg), nil
}

func mpClose(ex *Executor, in []Value) (Value, error) {
	name, err := channelArg("close", in)
	if err != nil {
		return nil, err
	}
	c, ok := ex.conns.remove(name)
	if !ok {
		return nil, Err{
			reason:  ErrRuntime,
			message: fmt.Sprintf("close(): channel %s is not open", name),
			cause:   ErrChannel,
		}
	}

	if err := c.conn.Close(); err != nil {
		return nil, Err{reason: ErrRuntime, message: fmt.Sprintf("close() on channel %s failed: %s", name, err), cause: err}
	}
	return Null, nil
}
