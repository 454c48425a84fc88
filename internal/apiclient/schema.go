package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/joseph-ayodele/docflow/internal/entity"
)

type schemaEnvelope struct {
	Schema entity.Schema `json:"schema"`
}

// GetSchema fetches the current schema.
func (c *Client) GetSchema(ctx context.Context) (entity.Schema, error) {
	var out schemaEnvelope
	err := c.doJSON(ctx, "schema.get", http.MethodGet, "/schema", nil, nil, &out)
	return out.Schema, err
}

// SetSchema replaces the whole schema definition.
func (c *Client) SetSchema(ctx context.Context, schema entity.Schema) (entity.Schema, error) {
	var out schemaEnvelope
	err := c.doJSON(ctx, "schema.set", http.MethodPost, "/schema/set", nil, schemaEnvelope{Schema: schema}, &out)
	return out.Schema, err
}

type addFieldPayload struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Required    bool    `json:"required"`
	Nullable    bool    `json:"nullable"`
	Description *string `json:"description,omitempty"`
	Format      *string `json:"format,omitempty"`
}

// AddField appends one field to the schema.
func (c *Client) AddField(ctx context.Context, spec entity.FieldSpec) (entity.Schema, error) {
	in := addFieldPayload{
		Name:     spec.Name,
		Type:     string(spec.Type),
		Required: spec.Required,
		Nullable: spec.Nullable,
	}
	if spec.Description != "" {
		in.Description = &spec.Description
	}
	if spec.Format != "" {
		in.Format = &spec.Format
	}
	var out schemaEnvelope
	err := c.doJSON(ctx, "schema.add_field", http.MethodPost, "/schema/fields", nil, in, &out)
	return out.Schema, err
}

// DeleteField removes one field from the schema.
func (c *Client) DeleteField(ctx context.Context, name string) (entity.Schema, error) {
	var out schemaEnvelope
	err := c.doJSON(ctx, "schema.delete_field", http.MethodDelete, "/schema/fields/"+url.PathEscape(name), nil, nil, &out)
	return out.Schema, err
}

// ResetSchema restores the server's default schema.
func (c *Client) ResetSchema(ctx context.Context) (entity.Schema, error) {
	var out schemaEnvelope
	err := c.doJSON(ctx, "schema.reset", http.MethodPost, "/schema/reset", nil, nil, &out)
	return out.Schema, err
}
