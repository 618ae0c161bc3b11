package core

import (
	"agrorec/pkg/domain"
	"context"
	"sort"
	"strings"
)

// ProductCatalog manages the agrochemical product list.
type ProductCatalog struct {
	svc *Service
}

// ProductPatch carries the fields of a partial product update.
type ProductPatch struct {
	Name             *string
	ActiveIngredient *string
	Kind             *string
	Available        *bool
}

// Add registers a new available product. Names are unique; a duplicate
// fails with a ConflictError naming the product.
func (p *ProductCatalog) Add(ctx context.Context, product Product) (Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	var created Product
	err := p.svc.run(ctx, "add_product", func(ctx context.Context) (string, error) {
		if product.Name == "" {
			return "", domain.ValidationError{Entity: EntityProduct, Field: "name", Message: "required"}
		}
		product.ID = ""
		product.Available = true
		product.SyncStatus = SyncPendingCreation
		err := p.svc.write(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateProduct(product)
			return err
		})
		return created.ID, err
	})
	return created, err
}

// ListAvailable returns every product not marked for deletion, by name.
func (p *ProductCatalog) ListAvailable(ctx context.Context) ([]Product, error) {
	out := []Product{}
	err := p.svc.store.View(ctx, func(v domain.TransactionView) error {
		for _, product := range v.ListProducts() {
			if product.Visible() {
				out = append(out, product)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// Get returns a visible product by id.
func (p *ProductCatalog) Get(ctx context.Context, id string) (Product, bool, error) {
	var (
		product Product
		ok      bool
	)
	err := p.svc.store.View(ctx, func(v domain.TransactionView) error {
		product, ok = v.FindProduct(id)
		return nil
	})
	if err != nil || !ok || !product.Visible() {
		return Product{}, false, err
	}
	return product, true, nil
}

// Update applies patch and the sync-status update rule.
func (p *ProductCatalog) Update(ctx context.Context, id string, patch ProductPatch) (Product, error) {
	var updated Product
	err := p.svc.run(ctx, "update_product", func(ctx context.Context) (string, error) {
		return id, p.svc.write(ctx, func(tx domain.Transaction) error {
			current, ok := tx.FindProduct(id)
			if !ok || !current.Visible() {
				return domain.ErrNotFound{Entity: EntityProduct, ID: id}
			}
			var err error
			updated, err = tx.UpdateProduct(id, func(product *Product) error {
				if patch.Name != nil {
					name := strings.TrimSpace(*patch.Name)
					if name == "" {
						return domain.ValidationError{Entity: EntityProduct, Field: "name", Message: "required"}
					}
					product.Name = name
				}
				if patch.ActiveIngredient != nil {
					product.ActiveIngredient = *patch.ActiveIngredient
				}
				if patch.Kind != nil {
					product.Kind = *patch.Kind
				}
				if patch.Available != nil {
					product.Available = *patch.Available
				}
				product.SyncStatus = product.SyncStatus.AfterUpdate()
				return nil
			})
			return err
		})
	})
	return updated, err
}

// Delete hard-deletes products that never left the device and tombstones
// the rest.
func (p *ProductCatalog) Delete(ctx context.Context, id string) error {
	return p.svc.run(ctx, "delete_product", func(ctx context.Context) (string, error) {
		return id, p.svc.write(ctx, func(tx domain.Transaction) error {
			current, ok := tx.FindProduct(id)
			if !ok || !current.Visible() {
				return domain.ErrNotFound{Entity: EntityProduct, ID: id}
			}
			if current.SyncStatus.OnDelete() == domain.DeleteHard {
				return tx.DeleteProduct(id)
			}
			_, err := tx.UpdateProduct(id, func(product *Product) error {
				product.SyncStatus = SyncPendingDeletion
				return nil
			})
			return err
		})
	})
}

// MarkSynced confirms a product push, purging confirmed tombstones.
func (p *ProductCatalog) MarkSynced(ctx context.Context, id string) error {
	return p.svc.run(ctx, "mark_product_synced", func(ctx context.Context) (string, error) {
		return id, p.svc.write(ctx, func(tx domain.Transaction) error {
			current, ok := tx.FindProduct(id)
			if !ok {
				return domain.ErrNotFound{Entity: EntityProduct, ID: id}
			}
			next, purge := current.SyncStatus.AfterSync()
			if purge {
				return tx.DeleteProduct(id)
			}
			_, err := tx.UpdateProduct(id, func(product *Product) error {
				product.SyncStatus = next
				return nil
			})
			return err
		})
	})
}
