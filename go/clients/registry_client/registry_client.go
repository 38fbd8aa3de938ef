package registry_client

import (
	"github.com/mcdev12/singalong/go/clients"
)

// RegistryClient talks to the room registry HTTP API
type RegistryClient struct {
	*clients.BaseClient
}

func NewRegistryClient(baseURL string) *RegistryClient {
	client := &RegistryClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetHeader(UserAgentHeader, UserAgent)

	return client
}
