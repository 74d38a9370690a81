package redis

import (
	"fmt"

	"github.com/rkoval/playlink/internal/model"
)

// Key prefix for all playlink data
const keyPrefix = "playlink"

// deviceKey returns the key holding the device id -> player id mapping
func deviceKey(deviceID string) string {
	return fmt.Sprintf("%s:device:%s", keyPrefix, deviceID)
}

// playerKey returns the key of the player's balance hash
func playerKey(id model.PlayerID) string {
	return fmt.Sprintf("%s:player:%s", keyPrefix, id)
}

// onlineKey returns the key holding the player's presence entry
func onlineKey(id model.PlayerID) string {
	return fmt.Sprintf("%s:online:%s", keyPrefix, id)
}
