package push

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ShodmonX/trading-signals-bot/internal/infrastructure"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Gateway relays backtest progress and result events from JetStream to
// browser websocket clients. Clients subscribe per session; the NATS
// subscription for a topic lives exactly as long as someone listens to it.
type Gateway struct {
	logger   *zap.Logger
	js       nats.JetStreamContext
	topics   map[string]map[*client]bool
	natsSubs map[string]*nats.Subscription
	mu       sync.RWMutex
}

func NewGateway(js nats.JetStreamContext, logger *zap.Logger) *Gateway {
	return &Gateway{
		logger:   logger,
		js:       js,
		topics:   make(map[string]map[*client]bool),
		natsSubs: make(map[string]*nats.Subscription),
	}
}

// topicAllowed limits websocket subscriptions to per-session backtest
// subjects. Wildcards stay server-side only.
func topicAllowed(topic string) bool {
	if strings.ContainsAny(topic, "*> ") {
		return false
	}
	return (strings.HasPrefix(topic, infrastructure.SubjectProgressPrefix) &&
		len(topic) > len(infrastructure.SubjectProgressPrefix)) ||
		(strings.HasPrefix(topic, infrastructure.SubjectResultPrefix) &&
			len(topic) > len(infrastructure.SubjectResultPrefix))
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("failed to upgrade websocket", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 256),
	}
	infrastructure.WSConnections.Inc()

	go g.writePump(c)
	g.readPump(c)
}

func (g *Gateway) readPump(c *client) {
	defer func() {
		g.dropClient(c)
		infrastructure.WSConnections.Dec()
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req struct {
			Action string `json:"action"` // "subscribe" or "unsubscribe"
			Topic  string `json:"topic"`
		}
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}

		switch req.Action {
		case "subscribe":
			if !topicAllowed(req.Topic) {
				g.logger.Warn("rejected websocket topic", zap.String("topic", req.Topic))
				continue
			}
			g.subscribe(c, req.Topic)
		case "unsubscribe":
			g.unsubscribe(c, req.Topic)
		}
	}
}

func (g *Gateway) writePump(c *client) {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (g *Gateway) subscribe(c *client, topic string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.topics[topic] == nil {
		g.topics[topic] = make(map[*client]bool)
		if err := g.attachNATS(topic); err != nil {
			g.logger.Error("failed to subscribe to NATS", zap.String("topic", topic), zap.Error(err))
			delete(g.topics, topic)
			return
		}
	}
	g.topics[topic][c] = true
	g.logger.Info("client subscribed", zap.String("topic", topic))
}

func (g *Gateway) unsubscribe(c *client, topic string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeLocked(c, topic)
}

func (g *Gateway) dropClient(c *client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for topic := range g.topics {
		g.removeLocked(c, topic)
	}
}

// removeLocked detaches a client from one topic and tears down the NATS
// subscription once the topic has no listeners. Caller holds g.mu.
func (g *Gateway) removeLocked(c *client, topic string) {
	clients, ok := g.topics[topic]
	if !ok {
		return
	}
	delete(clients, c)
	if len(clients) > 0 {
		return
	}
	if sub, ok := g.natsSubs[topic]; ok {
		sub.Unsubscribe()
		delete(g.natsSubs, topic)
		g.logger.Info("released NATS topic, no clients left", zap.String("topic", topic))
	}
	delete(g.topics, topic)
}

// attachNATS replays the session's events from the start of the stream so a
// client that connects mid-run still sees the earlier progress milestones.
// Caller holds g.mu.
func (g *Gateway) attachNATS(topic string) error {
	sub, err := g.js.Subscribe(topic, func(msg *nats.Msg) {
		g.mu.RLock()
		for c := range g.topics[topic] {
			select {
			case c.send <- msg.Data:
			default:
				// Slow client, drop the frame rather than block.
			}
		}
		g.mu.RUnlock()
		msg.Ack()
	}, nats.DeliverAll(), nats.ManualAck())
	if err != nil {
		return err
	}

	g.natsSubs[topic] = sub
	return nil
}
