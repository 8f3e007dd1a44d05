package status

import (
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Sender delivers messages to the status broker.
type Sender interface {
	Send(msg Message) error
	Close() error
}

const writeWait = 10 * time.Second

// WebsocketSender sends each message as a JSON text frame. The connection is
// opened on first use and reopened on the next send after a failure.
type WebsocketSender struct {
	mu     sync.Mutex
	url    string
	header http.Header
	dialer *websocket.Dialer
	conn   *websocket.Conn
	log    log.Interface
}

type WebsocketSenderOptionFN func(*WebsocketSender)

func NewWebsocketSender(url string, optFNs ...WebsocketSenderOptionFN) *WebsocketSender {
	s := &WebsocketSender{
		url:    url,
		dialer: websocket.DefaultDialer,
		log:    log.Log,
	}

	for _, optfn := range optFNs {
		optfn(s)
	}

	return s
}

func WithSenderLogger(l log.Interface) WebsocketSenderOptionFN {
	return func(s *WebsocketSender) {
		s.log = l
	}
}

func WithHeader(header http.Header) WebsocketSenderOptionFN {
	return func(s *WebsocketSender) {
		s.header = header
	}
}

func (s *WebsocketSender) Send(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		conn, _, err := s.dialer.Dial(s.url, s.header)
		if err != nil {
			return errors.Wrapf(err, "connecting to status broker %s", s.url)
		}

		s.log.Infof("Connected to status broker %s", s.url)
		s.conn = conn
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		_ = s.conn.Close()
		s.conn = nil
		return errors.Wrapf(err, "sending status message %s", msg.ID)
	}

	return nil
}

func (s *WebsocketSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := s.conn.Close()
	s.conn = nil

	return err
}
