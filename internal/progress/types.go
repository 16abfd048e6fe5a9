package progress

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// message types sent to progress subscribers
const (
	// one line of process output
	TypeLine = "line"

	// the run finished, successfully or not
	TypeDone = "done"

	// is sent when an error occurs
	TypeError = "error"

	// is sent by server before shutdown
	TypeServerShutdown = "server_shutdown"
)

// client connection constants
const (
	// time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// subscribers only send control frames
	maxMessageSize = 4 * 1024

	sendBufferSize = 256
)

// connection limits
const (
	MaxSubscribersPerChannel = 4
	MaxConnectionsPerCaller  = 16
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrTooManyListeners = errors.New("too many subscribers")
)

type Message struct {
	Type       string          `json:"type"`
	ProgressID string          `json:"progress_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   uint64          `json:"seq,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

type LinePayload struct {
	Stream string `json:"stream"`
	Text   string `json:"text"`
}

type DonePayload struct {
	Success    bool   `json:"success"`
	Code       string `json:"code,omitempty"`
	ArtifactID string `json:"artifact_id,omitempty"`
}

type ErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type ServerShutdownPayload struct {
	Reason string `json:"reason"`
}

// one websocket subscriber
type Client struct {
	ID         string
	CallerID   string
	ProgressID string

	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte
	mu     sync.RWMutex
	closed bool
}

type Hub struct {
	// channel key -> client id -> client
	channels  map[string]map[string]*Client
	sequences map[string]uint64
	perCaller map[string]int

	Register   chan *Client
	Unregister chan *Client

	mu       sync.RWMutex
	running  bool
	stopOnce sync.Once
	shutdown chan struct{}
	stopped  chan struct{}
}
