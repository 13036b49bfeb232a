package upstream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Event is one message from the platform's notification socket
type Event struct {
	Type           string `json:"type"`
	Resource       string `json:"resource"`
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organization_id,omitempty"`
	UserID         int64  `json:"user_id,omitempty"`
}

// Event types published by the platform server
const (
	EventRoleChanged = "role_changed"
	EventRuleChanged = "rule_changed"
	EventUserChanged = "user_changed"
	EventNodeStatus  = "node_status"
	EventTaskStatus  = "task_status"
)

// PermissionEvent reports whether the event can change someone's effective
// rule set and therefore requires a permission-store refresh.
func (e Event) PermissionEvent() bool {
	switch e.Type {
	case EventRoleChanged, EventRuleChanged, EventUserChanged:
		return true
	}
	return false
}

const (
	reconnectMinBackoff = time.Second
	reconnectMaxBackoff = 30 * time.Second
	socketReadTimeout   = 90 * time.Second
)

// Listener subscribes to the platform's notification socket and dispatches
// decoded events to a handler. The connection is re-established with capped
// exponential backoff until the context is cancelled.
type Listener struct {
	url     string
	source  oauth2.TokenSource
	handler func(Event)
	dialer  *websocket.Dialer
	log     *logrus.Entry
}

// NewListener creates a listener for the socket at wsURL, authenticating
// with tokens from source.
func NewListener(wsURL string, source oauth2.TokenSource, handler func(Event)) *Listener {
	return &Listener{
		url:     wsURL,
		source:  source,
		handler: handler,
		dialer:  websocket.DefaultDialer,
		log:     logrus.WithField("component", "notification-listener"),
	}
}

// Run connects and consumes events until the context is done. Connection
// failures are logged and retried; they never propagate to the caller, since
// a lost socket only delays refreshes and must not tear the session down.
func (l *Listener) Run(ctx context.Context) {
	var backoff time.Duration
	for {
		start := time.Now()
		err := l.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		backoff = nextReconnectDelay(backoff, time.Since(start))
		if err != nil {
			l.log.WithError(err).Warnf("notification socket disconnected, retrying in %s", backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// nextReconnectDelay doubles the retry delay up to the cap. A connection
// that lived at least as long as the cap counts as recovered, so the delay
// starts over instead of inheriting the previous outage's value.
func nextReconnectDelay(prev, connectedFor time.Duration) time.Duration {
	if prev == 0 || connectedFor >= reconnectMaxBackoff {
		return reconnectMinBackoff
	}
	next := prev * 2
	if next > reconnectMaxBackoff {
		next = reconnectMaxBackoff
	}
	return next
}

func (l *Listener) consume(ctx context.Context) error {
	header := http.Header{}
	if l.source != nil {
		token, err := l.source.Token()
		if err != nil {
			return err
		}
		header.Set("Authorization", "Bearer "+token.AccessToken)
	}

	conn, resp, err := l.dialer.DialContext(ctx, l.url, header)
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()
	l.log.Info("notification socket connected")

	// Close the connection when the context ends so ReadJSON unblocks
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(socketReadTimeout)); err != nil {
			return err
		}
		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			return err
		}
		if l.handler != nil {
			l.handler(event)
		}
	}
}
