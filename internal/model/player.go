package model

// PlayerID uniquely identifies a player across the system
type PlayerID string

// SessionID uniquely identifies one live client connection
type SessionID string

// ResourceType selects which of a player's balances an operation targets
type ResourceType string

const (
	ResourceCoins ResourceType = "coins"
	ResourceRolls ResourceType = "rolls"
)

// Valid reports whether the resource type is one of the known kinds
func (r ResourceType) Valid() bool {
	return r == ResourceCoins || r == ResourceRolls
}

// Starting balances granted to a player on first login
const (
	StartingCoins = 100
	StartingRolls = 10
)

// Player represents a game participant.
// ID and DeviceID are immutable after creation; balances are mutated only
// through the player store.
type Player struct {
	ID       PlayerID `json:"id"`
	DeviceID string   `json:"device_id"`
	Coins    int      `json:"coins"`
	Rolls    int      `json:"rolls"`
}

// Balance returns the balance for the given resource type
func (p *Player) Balance(r ResourceType) int {
	if r == ResourceRolls {
		return p.Rolls
	}
	return p.Coins
}
