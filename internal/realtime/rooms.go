package realtime

import "github.com/cwrk-planet/realtime-service/internal/domain"

const (
	roomServerPrefix  = "server:"
	roomChannelPrefix = "channel:"
	roomUserPrefix    = "user:"
)

func ServerRoom(serverID string) string {
	return roomServerPrefix + serverID
}

func ChannelRoom(channelID string) string {
	return roomChannelPrefix + channelID
}

func UserRoom(userID domain.UserID) string {
	return roomUserPrefix + string(userID)
}
