package products

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/labgig/labgig-crm/internal/masterdata/shared"
)

type fakeRepo struct {
	products   map[int64]Product
	nextID     int64
	refs       map[string]int64
	referenced map[int64]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		products:   make(map[int64]Product),
		refs:       make(map[string]int64),
		referenced: make(map[int64]bool),
	}
}

func (f *fakeRepo) List(ctx context.Context, companyID int64, filters shared.ListFilters) ([]Product, int, error) {
	var out []Product
	for _, p := range f.products {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (f *fakeRepo) Get(ctx context.Context, companyID, id int64) (Product, error) {
	p, ok := f.products[id]
	if !ok || p.CompanyID != companyID {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) Create(ctx context.Context, product Product) (Product, error) {
	if _, exists := f.refs[product.ReferenceNo]; exists {
		return Product{}, shared.ErrDuplicate
	}
	f.nextID++
	product.ID = f.nextID
	f.products[product.ID] = product
	f.refs[product.ReferenceNo] = product.ID
	return product, nil
}

func (f *fakeRepo) Update(ctx context.Context, companyID, id int64, product Product) error {
	existing, ok := f.products[id]
	if !ok || existing.CompanyID != companyID {
		return shared.ErrNotFound
	}
	product.ID = id
	product.CompanyID = companyID
	product.StockQuantity = existing.StockQuantity
	f.products[id] = product
	return nil
}

func (f *fakeRepo) Delete(ctx context.Context, companyID, id int64) error {
	if f.referenced[id] {
		return shared.ErrInUse
	}
	p, ok := f.products[id]
	if !ok || p.CompanyID != companyID {
		return shared.ErrNotFound
	}
	delete(f.products, id)
	return nil
}

func TestCreateProduct(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	form := CreateProductForm{
		ProductForm:  ProductForm{ReferenceNo: "LG-001", Name: "Autoclave", Price: 1200, IsActive: true},
		InitialStock: 4,
	}
	product, err := svc.Create(ctx, 1, form)
	require.NoError(t, err)
	require.Equal(t, int64(1), product.CompanyID)
	require.Equal(t, int64(4), product.StockQuantity)

	_, err = svc.Create(ctx, 1, form)
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestCreateProductValidation(t *testing.T) {
	svc := NewService(newFakeRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, CreateProductForm{ProductForm: ProductForm{Name: "no ref"}})
	require.ErrorIs(t, err, shared.ErrRequiredField)

	_, err = svc.Create(ctx, 1, CreateProductForm{ProductForm: ProductForm{ReferenceNo: "LG-002"}})
	require.ErrorIs(t, err, shared.ErrRequiredField)

	_, err = svc.Create(ctx, 0, CreateProductForm{ProductForm: ProductForm{ReferenceNo: "LG-002", Name: "x"}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateKeepsStockQuantity(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	product, err := svc.Create(ctx, 1, CreateProductForm{
		ProductForm:  ProductForm{ReferenceNo: "LG-003", Name: "Incubator", Price: 900},
		InitialStock: 7,
	})
	require.NoError(t, err)

	err = svc.Update(ctx, 1, product.ID, ProductForm{ReferenceNo: "LG-003", Name: "Incubator XL", Price: 950})
	require.NoError(t, err)

	updated, err := svc.Get(ctx, 1, product.ID)
	require.NoError(t, err)
	require.Equal(t, "Incubator XL", updated.Name)
	require.Equal(t, int64(7), updated.StockQuantity)
}

func TestDeleteProductWithHistoryRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	product, err := svc.Create(ctx, 1, CreateProductForm{
		ProductForm: ProductForm{ReferenceNo: "LG-010", Name: "Spectrometer"},
	})
	require.NoError(t, err)
	repo.referenced[product.ID] = true

	err = svc.Delete(ctx, 1, product.ID)
	require.ErrorIs(t, err, shared.ErrInUse)

	// The product survives the attempt.
	_, err = svc.Get(ctx, 1, product.ID)
	require.NoError(t, err)
}

func TestDeleteUnreferencedProduct(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	product, err := svc.Create(ctx, 1, CreateProductForm{
		ProductForm: ProductForm{ReferenceNo: "LG-011", Name: "Stir Plate"},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, 1, product.ID))
	_, err = svc.Get(ctx, 1, product.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGetOtherTenant(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	product, err := svc.Create(ctx, 1, CreateProductForm{
		ProductForm: ProductForm{ReferenceNo: "LG-004", Name: "Fume Hood"},
	})
	require.NoError(t, err)

	_, err = svc.Get(ctx, 2, product.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
