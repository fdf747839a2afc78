package relay

// Room is a set of connected participants scoped under one name. Membership
// order is preserved so a joiner always sees earlier members in join order.
type Room struct {
	// Name is the room's identifier as chosen by its first joiner.
	Name string

	members map[string]*Client
	order   []string
}

// NewRoom creates an empty room.
func NewRoom(name string) *Room {
	return &Room{
		Name:    name,
		members: make(map[string]*Client),
	}
}

// Add inserts a client into the room.
func (r *Room) Add(client *Client) {
	if _, ok := r.members[client.Address]; ok {
		return
	}
	r.members[client.Address] = client
	r.order = append(r.order, client.Address)
}

// Remove drops the member with the given address, if present.
func (r *Room) Remove(address string) {
	if _, ok := r.members[address]; !ok {
		return
	}
	delete(r.members, address)
	for i, addr := range r.order {
		if addr == address {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns the member with the given address, or nil.
func (r *Room) Get(address string) *Client {
	return r.members[address]
}

// Addresses returns the member addresses in join order.
func (r *Room) Addresses() []string {
	addrs := make([]string, len(r.order))
	copy(addrs, r.order)
	return addrs
}

// Len returns the current member count.
func (r *Room) Len() int {
	return len(r.members)
}
