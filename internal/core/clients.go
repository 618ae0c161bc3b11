package core

import (
	"agrorec/pkg/domain"
	"context"
	"strings"
)

// ClientSearchLimit caps the number of results returned by Search.
const ClientSearchLimit = 10

// ClientService maintains the client directory keyed by national id.
type ClientService struct {
	svc *Service
}

// Upsert inserts the client or merges the non-empty fields of payload over
// the stored entry. A payload without a national id is ignored and the zero
// Client is returned. createdAt is only ever set by the first insert.
func (c *ClientService) Upsert(ctx context.Context, payload Client) (client Client, err error) {
	payload.NationalID = strings.TrimSpace(payload.NationalID)
	if payload.NationalID == "" {
		c.svc.logger.Debug("client upsert skipped without national id", "name", payload.Name)
		return Client{}, nil
	}
	err = c.svc.run(ctx, "upsert_client", func(ctx context.Context) (string, error) {
		return payload.NationalID, c.svc.write(ctx, func(tx domain.Transaction) error {
			var err error
			if _, exists := tx.FindClient(payload.NationalID); !exists {
				payload.CreatedAt = tx.Now()
				client, err = tx.CreateClient(payload)
				return err
			}
			client, err = tx.UpdateClient(payload.NationalID, func(existing *Client) error {
				mergeClient(existing, payload)
				return nil
			})
			return err
		})
	})
	return client, err
}

func mergeClient(dst *Client, src Client) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Address != "" {
		dst.Address = src.Address
	}
	if src.Region != "" {
		dst.Region = src.Region
	}
	if src.Phone != "" {
		dst.Phone = src.Phone
	}
	if src.Signature != nil && *src.Signature != "" {
		dst.Signature = domain.StringPtr(*src.Signature)
	}
}

// Insert adds a new client and fails with a ConflictError when the national
// id is already registered.
func (c *ClientService) Insert(ctx context.Context, client Client) (Client, error) {
	client.NationalID = strings.TrimSpace(client.NationalID)
	var created Client
	err := c.svc.run(ctx, "insert_client", func(ctx context.Context) (string, error) {
		return client.NationalID, c.svc.write(ctx, func(tx domain.Transaction) error {
			client.CreatedAt = tx.Now()
			var err error
			created, err = tx.CreateClient(client)
			return err
		})
	})
	return created, err
}

// Get returns the client registered under nationalID.
func (c *ClientService) Get(ctx context.Context, nationalID string) (Client, bool, error) {
	var (
		client Client
		ok     bool
	)
	err := c.svc.store.View(ctx, func(v domain.TransactionView) error {
		client, ok = v.FindClient(strings.TrimSpace(nationalID))
		return nil
	})
	return client, ok, err
}

// List returns every client ordered by national id.
func (c *ClientService) List(ctx context.Context) ([]Client, error) {
	var clients []Client
	err := c.svc.store.View(ctx, func(v domain.TransactionView) error {
		clients = v.ListClients()
		return nil
	})
	return clients, err
}

// Search returns up to ClientSearchLimit clients whose national id or name
// starts with query, ignoring case. A blank query matches nothing.
func (c *ClientService) Search(ctx context.Context, query string) ([]Client, error) {
	prefix := strings.ToLower(strings.TrimSpace(query))
	out := []Client{}
	if prefix == "" {
		return out, nil
	}
	err := c.svc.store.View(ctx, func(v domain.TransactionView) error {
		for _, client := range v.ListClients() {
			if len(out) == ClientSearchLimit {
				break
			}
			if strings.HasPrefix(strings.ToLower(client.NationalID), prefix) ||
				strings.HasPrefix(strings.ToLower(client.Name), prefix) {
				out = append(out, client)
			}
		}
		return nil
	})
	return out, err
}
