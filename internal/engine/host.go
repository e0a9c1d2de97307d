package engine

// HostAuthority holds the single host slot. Claims are soft: the last claim
// wins and nothing is verified beyond the connection id.
type HostAuthority struct {
	connID string
}

func (h *HostAuthority) Claim(connID string) { h.connID = connID }

func (h *HostAuthority) IsHost(connID string) bool {
	return connID != "" && h.connID == connID
}

func (h *HostAuthority) HasHost() bool { return h.connID != "" }

// Release clears the slot only if connID currently holds it. The role is not
// handed to anyone else.
func (h *HostAuthority) Release(connID string) bool {
	if !h.IsHost(connID) {
		return false
	}
	h.connID = ""
	return true
}
