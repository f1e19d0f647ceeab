package hub

// roomIndex tracks room membership inside one namespace. It is only touched with
// the owning namespace's lock held.
type roomIndex struct {
	rooms map[string]map[string]*Conn
}

func newRoomIndex() *roomIndex {
	return &roomIndex{rooms: make(map[string]map[string]*Conn)}
}

// join moves c into room, leaving its current room first. It returns the room that
// was left, or "" when c was not in a room.
func (ri *roomIndex) join(c *Conn, room string) string {
	left := ri.leaveAll(c)

	members, ok := ri.rooms[room]
	if !ok {
		members = make(map[string]*Conn)
		ri.rooms[room] = members
	}
	members[c.id] = c
	c.room = room
	return left
}

// leaveAll removes c from whichever room it occupies and returns that room.
// Empty rooms are dropped from the index; their count still reads zero.
func (ri *roomIndex) leaveAll(c *Conn) string {
	room := c.room
	if room == "" {
		return ""
	}
	if members, ok := ri.rooms[room]; ok {
		delete(members, c.id)
		if len(members) == 0 {
			delete(ri.rooms, room)
		}
	}
	c.room = ""
	return room
}

func (ri *roomIndex) count(room string) int {
	return len(ri.rooms[room])
}

func (ri *roomIndex) members(room string, except *Conn) []*Conn {
	members := ri.rooms[room]
	out := make([]*Conn, 0, len(members))
	for _, c := range members {
		if c == except {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (ri *roomIndex) len() int {
	return len(ri.rooms)
}
