package registry_client

const (
	// API Endpoints
	RoomsEndpoint      = "/rooms"
	CreateRoomEndpoint = "/rooms/create"
	VerifyRoomEndpoint = "/rooms/verify"
	HeartbeatEndpoint  = "/heartbeat"

	// Headers
	UserAgentHeader = "User-Agent"
	UserAgent       = "singalong-roomclient"
)
