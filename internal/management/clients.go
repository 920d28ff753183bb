package management

import (
	"context"
	"fmt"
	"net/url"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/paging"
)

// Application is the subset of a client (application) record the sync reads.
type Application struct {
	ClientID       string `json:"client_id"`
	Name           string `json:"name"`
	OIDCConformant bool   `json:"oidc_conformant"`
}

var applicationFields = url.Values{
	"fields":         {"name,client_id,oidc_conformant"},
	"include_fields": {"true"},
}

func (c *Client) ListClients(ctx context.Context, offset, limit int) (paging.Page[Application], error) {
	return fetchPage[Application](ctx, c, "/clients", "clients", applicationFields, offset, limit)
}

// OIDCConformant reports whether the application clientID is configured as
// OIDC conformant.
func (c *Client) OIDCConformant(ctx context.Context, clientID string) (bool, error) {
	for app, err := range paging.New(c.ListClients, 0).All(ctx) {
		if err != nil {
			return false, err
		}
		if app.ClientID == clientID {
			return app.OIDCConformant, nil
		}
	}
	return false, fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
}
