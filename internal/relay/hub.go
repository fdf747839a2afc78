package relay

import (
	"encoding/json"
	"log"

	"github.com/calebmer/decode-universe-sub001/internal/signal"
)

// Hub is the central brain of the signaling relay. It manages all active
// rooms and clients from a single goroutine, so no locks are needed around
// the room state.
type Hub struct {
	// rooms maps room names to Room instances.
	rooms map[string]*Room

	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Inbound is the channel clients push their parsed messages to.
	Inbound chan *inboundMessage
}

// inboundMessage pairs a client message with its sender.
type inboundMessage struct {
	client *Client
	msg    *signal.Message
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *inboundMessage),
	}
}

// Run starts the hub's main processing loop. This is the single goroutine
// that safely manages all state (rooms, clients).
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			// The client is not in a room yet. They need to send a join
			// message first.
			log.Printf("Client registered: %s", client.Address)

		case client := <-h.Unregister:
			log.Printf("Client unregistered: %s", client.Address)
			h.removeClient(client)
			close(client.Send)

		case in := <-h.Inbound:
			switch in.msg.Type {
			case signal.MessageTypeJoin:
				h.handleJoin(in)
			case signal.MessageTypeSignal:
				h.handleSignal(in)
			default:
				log.Printf("Unknown message type: %s", in.msg.Type)
			}
		}
	}
}

// handleJoin replies with the room's current membership, then adds the
// joiner. The reply deliberately excludes the joiner, so each participant
// only initiates connections to peers that were already there.
func (h *Hub) handleJoin(in *inboundMessage) {
	var payload signal.JoinPayload
	if err := in.msg.DecodePayload(&payload); err != nil || payload.RoomName == "" {
		h.sendError(in.client, "invalid join payload")
		return
	}

	room, ok := h.rooms[payload.RoomName]
	if !ok {
		room = NewRoom(payload.RoomName)
		h.rooms[payload.RoomName] = room
	}

	reply, err := signal.NewMessage(signal.MessageTypeJoined, signal.JoinedPayload{
		Address:        in.client.Address,
		OtherAddresses: room.Addresses(),
	})
	if err != nil {
		log.Printf("encode joined reply: %v", err)
		return
	}
	in.client.Send <- reply

	room.Add(in.client)
	in.client.RoomName = room.Name

	log.Printf("Client %s joined room %s (%d members)", in.client.Address, room.Name, room.Len())
}

// handleSignal relays one signal to its recipient. Delivery is best effort:
// an unknown or disconnected recipient drops the signal silently and the
// sender is never told. Higher layers treat negotiation as retryable.
func (h *Hub) handleSignal(in *inboundMessage) {
	if in.client.RoomName == "" {
		h.sendError(in.client, "you must join a room first")
		return
	}

	var payload signal.SignalPayload
	if err := in.msg.DecodePayload(&payload); err != nil {
		h.sendError(in.client, "invalid signal payload")
		return
	}
	if err := payload.Signal.Validate(); err != nil {
		h.sendError(in.client, err.Error())
		return
	}

	room, ok := h.rooms[in.client.RoomName]
	if !ok {
		return
	}

	target := room.Get(payload.To)
	if target == nil {
		log.Printf("Dropping signal from %s: no member %s in room %s", in.client.Address, payload.To, room.Name)
		return
	}

	relayed, err := signal.NewMessage(signal.MessageTypeSignal, signal.SignalPayload{
		From:   in.client.Address,
		Signal: payload.Signal,
	})
	if err != nil {
		log.Printf("encode relayed signal: %v", err)
		return
	}

	select {
	case target.Send <- relayed:
	default:
		// Slow consumer. Best-effort delivery means we drop rather than
		// block the hub.
		log.Printf("Dropping signal to %s: send buffer full", target.Address)
	}
}

// removeClient takes a client out of its room, deleting the room when it
// empties. Rooms have no existence beyond their membership.
func (h *Hub) removeClient(client *Client) {
	if client.RoomName == "" {
		return
	}
	room, ok := h.rooms[client.RoomName]
	if !ok {
		return
	}
	room.Remove(client.Address)
	if room.Len() == 0 {
		delete(h.rooms, room.Name)
		log.Printf("Room deleted: %s", room.Name)
	}
}

func (h *Hub) sendError(client *Client, msg string) {
	payload, _ := json.Marshal(signal.ErrorPayload{Error: msg})
	select {
	case client.Send <- &signal.Message{Type: signal.MessageTypeError, Payload: payload}:
	default:
	}
}
