package game

import (
	"fmt"
	"time"

	"trivia-room-service/internal/domain"
)

// roster tracks player identity, scores, and presence for one room, plus the
// ephemeral connection→player mapping used to resolve event senders. It is
// not safe for concurrent use; the owning room serializes access.
type roster struct {
	players map[string]*domain.Player
	byConn  map[string]string // connection id -> player id
}

func newRoster() *roster {
	return &roster{
		players: make(map[string]*domain.Player),
		byConn:  make(map[string]string),
	}
}

// join creates or refreshes a player record and binds it to the given
// connection. A known player keeps their score; a new non-empty name wins
// over the stored one. The connection recorded here becomes the player's
// authoritative one.
func (ro *roster) join(playerID, name, connID string, now time.Time) *domain.Player {
	existing := ro.players[playerID]
	if name == "" {
		if existing != nil && existing.Name != "" {
			name = existing.Name
		} else {
			name = defaultName(playerID)
		}
	}
	score := 0
	if existing != nil {
		score = existing.Score
	}
	ro.players[playerID] = &domain.Player{
		ID:        playerID,
		Name:      name,
		Score:     score,
		Connected: true,
		ConnID:    connID,
		LastSeen:  now,
	}
	ro.byConn[connID] = playerID
	return ro.players[playerID]
}

// touch refreshes lastSeen for the player behind connID. If the player's
// recorded connection went stale (a sweep or close beat the heartbeat), the
// pinging connection takes over as the live one.
func (ro *roster) touch(connID string, now time.Time) {
	playerID, ok := ro.byConn[connID]
	if !ok {
		return
	}
	p := ro.players[playerID]
	if p == nil {
		return
	}
	p.LastSeen = now
	if !p.Connected || p.ConnID != connID {
		p.Connected = true
		p.ConnID = connID
	}
}

// resolve maps a connection id to its player, if any.
func (ro *roster) resolve(connID string) (*domain.Player, bool) {
	playerID, ok := ro.byConn[connID]
	if !ok {
		return nil, false
	}
	p, ok := ro.players[playerID]
	return p, ok
}

// disconnect handles a transport close. The player is only marked offline if
// this connection is still their authoritative one; a stale close racing a
// newer reconnect must not clobber the live connection. Reports whether
// visible state changed.
func (ro *roster) disconnect(connID string, now time.Time) bool {
	playerID, ok := ro.byConn[connID]
	if !ok {
		return false
	}
	delete(ro.byConn, connID)

	p := ro.players[playerID]
	if p == nil || p.ConnID != connID {
		return false
	}
	p.Connected = false
	p.ConnID = ""
	p.LastSeen = now
	return true
}

// remove deletes a player outright, along with any connection-mapping
// entries pointing at them. Reports whether the player existed.
func (ro *roster) remove(playerID string) bool {
	if _, ok := ro.players[playerID]; !ok {
		return false
	}
	delete(ro.players, playerID)
	ro.dropConnsFor(playerID)
	return true
}

// removeDisconnected deletes every offline player and returns how many went.
func (ro *roster) removeDisconnected() int {
	removed := 0
	for id, p := range ro.players {
		if p.Connected {
			continue
		}
		delete(ro.players, id)
		ro.dropConnsFor(id)
		removed++
	}
	return removed
}

// removeAll clears the roster entirely.
func (ro *roster) removeAll() {
	ro.players = make(map[string]*domain.Player)
	ro.byConn = make(map[string]string)
}

// sweepStale flips players whose heartbeat is older than timeout to
// disconnected. Disconnect events are not guaranteed to arrive, so this runs
// on the presence watchdog. Reports whether anything changed.
func (ro *roster) sweepStale(now time.Time, timeout time.Duration) bool {
	changed := false
	for _, p := range ro.players {
		if !p.Connected {
			continue
		}
		if now.Sub(p.LastSeen) > timeout {
			p.Connected = false
			p.ConnID = ""
			changed = true
		}
	}
	return changed
}

func (ro *roster) dropConnsFor(playerID string) {
	for connID, id := range ro.byConn {
		if id == playerID {
			delete(ro.byConn, connID)
		}
	}
}

func defaultName(playerID string) string {
	if len(playerID) > 4 {
		playerID = playerID[:4]
	}
	return fmt.Sprintf("Player %s", playerID)
}
