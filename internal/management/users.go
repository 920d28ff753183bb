package management

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/paging"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/user/entity"
)

// ListUsers fetches the page of users containing offset.
func (c *Client) ListUsers(ctx context.Context, offset, limit int) (paging.Page[entity.RemoteUser], error) {
	return fetchPage[entity.RemoteUser](ctx, c, "/users", "users", nil, offset, limit)
}

func (c *Client) GetUser(ctx context.Context, userID string) (*entity.RemoteUser, error) {
	var u entity.RemoteUser
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) CreateUser(ctx context.Context, spec entity.UserSpec) (*entity.RemoteUser, error) {
	var u entity.RemoteUser
	if err := c.do(ctx, http.MethodPost, "/users", nil, spec, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUser deletes one user. A 404 is returned as an error matching
// ErrNotFound; deciding that it means success is the caller's job.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(userID), nil, nil, nil)
}
