package progress

import (
	"encoding/json"
	"time"

	"codeberg.org/docforge/server/internal/invoker"
	"codeberg.org/docforge/server/internal/logger"
)

func NewHub() *Hub {
	return &Hub{
		channels:   make(map[string]map[string]*Client),
		sequences:  make(map[string]uint64),
		perCaller:  make(map[string]int),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		shutdown:   make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// progress ids are picked by callers, so channels are scoped to the caller
func channelKey(callerID, progressID string) string {
	return callerID + "\x00" + progressID
}

func NewMessage(msgType, progressID string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:       msgType,
		ProgressID: progressID,
		Timestamp:  time.Now(),
		Payload:    raw,
	}, nil
}

// starts the hub's main loop
func (h *Hub) Run() {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()

	defer close(h.stopped)

	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case <-h.shutdown:
			h.closeAllConnections()
			return
		}
	}
}

// reports whether another subscriber may join. checked by the handler before upgrading;
// registration checks again since concurrent upgrades can pass this together
func (h *Hub) Admit(callerID, progressID string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.checkCapacity(callerID, progressID)
}

// caller holds h.mu
func (h *Hub) checkCapacity(callerID, progressID string) error {
	if len(h.channels[channelKey(callerID, progressID)]) >= MaxSubscribersPerChannel {
		return ErrTooManyListeners
	}

	if h.perCaller[callerID] >= MaxConnectionsPerCaller {
		return ErrTooManyListeners
	}

	return nil
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkCapacity(client.CallerID, client.ProgressID); err != nil {
		logger.Warn("progress subscriber rejected",
			"client_id", client.ID,
			"caller_id", client.CallerID,
			"progress_id", client.ProgressID,
			"error", err,
		)
		client.Close()

		return
	}

	key := channelKey(client.CallerID, client.ProgressID)
	if h.channels[key] == nil {
		h.channels[key] = make(map[string]*Client)
	}

	h.channels[key][client.ID] = client
	h.perCaller[client.CallerID]++

	logger.Debug("progress subscriber registered",
		"client_id", client.ID,
		"caller_id", client.CallerID,
		"progress_id", client.ProgressID,
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := channelKey(client.CallerID, client.ProgressID)

	clients, exists := h.channels[key]
	if !exists {
		return
	}

	if _, exists := clients[client.ID]; !exists {
		return
	}

	delete(clients, client.ID)
	client.Close()

	h.perCaller[client.CallerID]--
	if h.perCaller[client.CallerID] <= 0 {
		delete(h.perCaller, client.CallerID)
	}

	if len(clients) == 0 {
		delete(h.channels, key)
		delete(h.sequences, key)
	}

	logger.Debug("progress subscriber unregistered",
		"client_id", client.ID,
		"progress_id", client.ProgressID,
	)
}

// sends one output line to everyone watching the run
func (h *Hub) PublishLine(callerID, progressID string, line invoker.Line) {
	h.publish(callerID, progressID, TypeLine, LinePayload{Stream: line.Stream, Text: line.Text})
}

// sends the final event for a run
func (h *Hub) PublishDone(callerID, progressID string, done DonePayload) {
	h.publish(callerID, progressID, TypeDone, done)
}

// returns an onLine callback bound to one run, or nil when nobody asked for progress
func (h *Hub) LineSink(callerID, progressID string) func(invoker.Line) {
	if h == nil || progressID == "" {
		return nil
	}

	return func(line invoker.Line) {
		h.PublishLine(callerID, progressID, line)
	}
}

func (h *Hub) publish(callerID, progressID, msgType string, payload any) {
	if h == nil || progressID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	key := channelKey(callerID, progressID)

	clients, exists := h.channels[key]
	if !exists {
		return
	}

	msg, err := NewMessage(msgType, progressID, payload)
	if err != nil {
		logger.ErrorErr(err, "failed to create progress message", "progress_id", progressID)
		return
	}

	h.sequences[key]++
	msg.Sequence = h.sequences[key]

	for clientID, client := range clients {
		if err := client.Send(msg); err != nil {
			logger.Debug("failed to send progress message",
				"client_id", clientID,
				"progress_id", progressID,
				"error", err,
			)
		}
	}
}

// returns the number of subscribers on one run
func (h *Hub) SubscriberCount(callerID, progressID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.channels[channelKey(callerID, progressID)])
}

// stops Run and waits for it to notify subscribers
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() { close(h.shutdown) })

	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()

	if running {
		<-h.stopped
	}
}

// hands a finished client to Run unless the hub has already stopped
func (h *Hub) release(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.stopped:
	}
}

func (h *Hub) closeAllConnections() {
	h.mu.Lock()
	defer h.mu.Unlock()

	logger.Info("notifying progress subscribers of server shutdown")

	for key, clients := range h.channels {
		for _, client := range clients {
			msg, err := NewMessage(TypeServerShutdown, client.ProgressID, ServerShutdownPayload{
				Reason: "server is shutting down",
			})
			if err == nil {
				client.Send(msg) //nolint:errcheck,gosec // best effort notification
			}

			client.Close()
		}

		delete(h.channels, key)
	}

	h.sequences = make(map[string]uint64)
	h.perCaller = make(map[string]int)
}
