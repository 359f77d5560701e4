package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrClosed        = errors.New("connection closed")
	ErrSendQueueFull = errors.New("send queue full")
)

// Transport is one open bidirectional connection.
type Transport interface {
	// Start begins delivering frames. onClose is called exactly once, after
	// the last frame, whatever ended the connection.
	Start(onFrame func([]byte), onClose func(error))
	Send(frame []byte) error
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// GorillaDialer dials websocket connections with gorilla/websocket.
type GorillaDialer struct {
	Header           http.Header
	HandshakeTimeout time.Duration
	// PingPeriod enables keepalive pings; the read deadline is twice the period.
	PingPeriod time.Duration
	WriteWait  time.Duration
}

func (d *GorillaDialer) Dial(ctx context.Context, url string) (Transport, error) {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, err
	}
	writeWait := d.WriteWait
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	return &socket{
		conn:       conn,
		send:       make(chan []byte, 256),
		done:       make(chan struct{}),
		pingPeriod: d.PingPeriod,
		writeWait:  writeWait,
	}, nil
}

type socket struct {
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	onClose    func(error)
	pingPeriod time.Duration
	writeWait  time.Duration
}

func (s *socket) Start(onFrame func([]byte), onClose func(error)) {
	s.onClose = onClose
	go s.readPump(onFrame)
	go s.writePump()
}

func (s *socket) readPump(onFrame func([]byte)) {
	if s.pingPeriod > 0 {
		wait := 2 * s.pingPeriod
		s.conn.SetReadDeadline(time.Now().Add(wait))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(wait))
		})
	}
	for {
		typ, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.shutdown(err)
			return
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		onFrame(msg)
	}
}

func (s *socket) writePump() {
	var tick <-chan time.Time
	if s.pingPeriod > 0 {
		ticker := time.NewTicker(s.pingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.shutdown(err)
				return
			}
		case <-tick:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.shutdown(err)
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *socket) Send(frame []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return ErrClosed
	default:
		return ErrSendQueueFull
	}
}

func (s *socket) Close() error {
	s.shutdown(nil)
	return nil
}

func (s *socket) shutdown(err error) {
	s.closeOnce.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		s.conn.Close()
		if s.onClose != nil {
			s.onClose(err)
		}
	})
}
