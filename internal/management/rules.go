package management

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/paging"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/rule/entity"
	cfgentity "github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/ruleconfig/entity"
)

func (c *Client) ListRules(ctx context.Context, offset, limit int) (paging.Page[entity.Rule], error) {
	return fetchPage[entity.Rule](ctx, c, "/rules", "rules", nil, offset, limit)
}

func (c *Client) CreateRule(ctx context.Context, r entity.Rule) (*entity.Rule, error) {
	r.ID = ""
	var out entity.Rule
	if err := c.do(ctx, http.MethodPost, "/rules", nil, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateRule(ctx context.Context, id string, patch entity.RulePatch) (*entity.Rule, error) {
	var out entity.Rule
	if err := c.do(ctx, http.MethodPatch, "/rules/"+url.PathEscape(id), nil, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteRule(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/rules/"+url.PathEscape(id), nil, nil, nil)
}

// ListRuleConfigs returns the configured keys. Values are never returned.
func (c *Client) ListRuleConfigs(ctx context.Context) ([]cfgentity.Entry, error) {
	var out []cfgentity.Entry
	if err := c.do(ctx, http.MethodGet, "/rules-configs", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetRuleConfig upserts key.
func (c *Client) SetRuleConfig(ctx context.Context, key string, value any) error {
	return c.do(ctx, http.MethodPut, "/rules-configs/"+url.PathEscape(key), nil, map[string]any{"value": value}, nil)
}

func (c *Client) UnsetRuleConfig(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, "/rules-configs/"+url.PathEscape(key), nil, nil, nil)
}
