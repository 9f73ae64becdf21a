// Package stock orchestrates the dashboard's reads and mutations against the
// inventory API, going through the per-session query cache.
package stock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/stockapp/internal/domain/models"
	"github.com/mamadbah2/stockapp/internal/querycache"
	"github.com/mamadbah2/stockapp/internal/session"
	"github.com/mamadbah2/stockapp/pkg/clients/inventory"
)

// Cached resources.
const (
	ResourceDashboard = "dashboard"
	ResourceProducts  = "products"
	ResourceSupplies  = "supplies"
	ResourceStockOuts = "stock-outs"
)

// DefaultScope is used when no session is bound to the context, e.g. the CLI.
const DefaultScope = "default"

var (
	// ErrInsufficientStock is returned before any network call when a
	// stock-out exceeds the cached stock of its product.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrProductNotFound is returned when an id is absent from the product list.
	ErrProductNotFound = errors.New("product not found")
)

// InsufficientStockError details a rejected stock-out.
type InsufficientStockError struct {
	Product   string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available=%d, requested=%d", e.Product, e.Available, e.Requested)
}

// Is matches ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// AuditRecorder stores a trace of mutations. The mongodb repository
// satisfies it.
type AuditRecorder interface {
	Record(ctx context.Context, entry models.AuditEntry) error
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, models.AuditEntry) error { return nil }

// Service is safe for concurrent use by many sessions.
type Service struct {
	client inventory.Client
	cache  *querycache.Cache
	audit  AuditRecorder
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires a stock service. audit may be nil.
func NewService(client inventory.Client, cache *querycache.Cache, audit AuditRecorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = nopAudit{}
	}
	return &Service{client: client, cache: cache, audit: audit, logger: logger, now: time.Now}
}

// Scope returns the cache scope of the session bound to ctx.
func Scope(ctx context.Context) string {
	if id, ok := session.IDFromContext(ctx); ok {
		return id
	}
	return DefaultScope
}

func productsKey(scope, search string) querycache.Key {
	if search == "" {
		return querycache.NewKey(scope, ResourceProducts, nil)
	}
	return querycache.NewKey(scope, ResourceProducts, map[string]string{"search": search})
}

// Dashboard returns the aggregate statistics.
func (s *Service) Dashboard(ctx context.Context) (*models.DashboardStats, error) {
	key := querycache.NewKey(Scope(ctx), ResourceDashboard, nil)
	return querycache.Get(ctx, s.cache, key, s.client.DashboardStats)
}

// Products returns the product list for a search term. refresh forces a
// network call even when the term is cached.
func (s *Service) Products(ctx context.Context, search string, refresh bool) ([]models.Product, error) {
	key := productsKey(Scope(ctx), search)
	fetch := func(ctx context.Context) ([]models.Product, error) {
		return s.client.ListProducts(ctx, search)
	}
	if refresh {
		return querycache.Reload(ctx, s.cache, key, fetch)
	}
	return querycache.Get(ctx, s.cache, key, fetch)
}

// ProductsLoading reports whether the product list for search is being fetched.
func (s *Service) ProductsLoading(ctx context.Context, search string) bool {
	return s.cache.Loading(productsKey(Scope(ctx), search))
}

// Product looks id up in the unfiltered product list.
func (s *Service) Product(ctx context.Context, id models.ID) (models.Product, error) {
	products, err := s.Products(ctx, "", false)
	if err != nil {
		return models.Product{}, err
	}
	p, ok := models.FindProduct(products, id)
	if !ok {
		return models.Product{}, fmt.Errorf("%w: id=%s", ErrProductNotFound, id)
	}
	return p, nil
}

// SaveProduct creates a product when id is empty and updates it otherwise.
func (s *Service) SaveProduct(ctx context.Context, id models.ID, in models.ProductInput) (*models.Product, error) {
	var (
		product *models.Product
		err     error
		action  = "create"
	)
	if id == "" {
		product, err = s.client.CreateProduct(ctx, in)
	} else {
		action = "update"
		product, err = s.client.UpdateProduct(ctx, id, in)
	}
	if err != nil {
		return nil, fmt.Errorf("%s product: %w", action, err)
	}

	resourceID := id
	if resourceID == "" && product != nil {
		resourceID = product.ID
	}
	s.record(ctx, action, ResourceProducts, resourceID.String(), map[string]string{
		"name":          in.Name,
		"current_stock": strconv.Itoa(in.CurrentStock),
		"price":         strconv.FormatFloat(in.Price, 'f', -1, 64),
	})
	s.afterMutation(ctx, ResourceProducts)
	return product, nil
}

// DeleteProduct removes a product.
func (s *Service) DeleteProduct(ctx context.Context, id models.ID) error {
	if err := s.client.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	s.record(ctx, "delete", ResourceProducts, id.String(), nil)
	s.afterMutation(ctx, ResourceProducts)
	return nil
}

// Supplies returns every recorded supply.
func (s *Service) Supplies(ctx context.Context) ([]models.Supply, error) {
	key := querycache.NewKey(Scope(ctx), ResourceSupplies, nil)
	return querycache.Get(ctx, s.cache, key, s.client.ListSupplies)
}

// CreateSupply records a supply.
func (s *Service) CreateSupply(ctx context.Context, in models.SupplyInput) (*models.Supply, error) {
	supply, err := s.client.CreateSupply(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create supply: %w", err)
	}
	var resourceID string
	if supply != nil {
		resourceID = supply.ID.String()
	}
	s.record(ctx, "create", ResourceSupplies, resourceID, map[string]string{
		"product_id":    strconv.Itoa(in.ProductID),
		"quantity":      strconv.Itoa(in.Quantity),
		"supplier_name": in.SupplierName,
	})
	s.afterMutation(ctx, ResourceSupplies)
	return supply, nil
}

// StockOuts returns every recorded stock-out.
func (s *Service) StockOuts(ctx context.Context) ([]models.StockOut, error) {
	key := querycache.NewKey(Scope(ctx), ResourceStockOuts, nil)
	return querycache.Get(ctx, s.cache, key, s.client.ListStockOuts)
}

// CheckStock compares a stock-out with the cached product list. It never
// hits the network: a product missing from the cache passes, and the API
// stays the authority on stock levels.
func (s *Service) CheckStock(ctx context.Context, in models.StockOutInput) error {
	products, ok := querycache.Cached[[]models.Product](s.cache, productsKey(Scope(ctx), ""))
	if !ok {
		return nil
	}
	p, ok := models.FindProduct(products, models.ID(strconv.Itoa(in.ProductID)))
	if !ok {
		return nil
	}
	if in.Quantity > p.CurrentStock {
		return &InsufficientStockError{Product: p.Name, Available: p.CurrentStock, Requested: in.Quantity}
	}
	return nil
}

// CreateStockOut records a stock-out after the advisory stock check. The
// unfiltered product list is loaded first when it is not cached; if it cannot
// be loaded the stock-out goes to the API unchecked.
func (s *Service) CreateStockOut(ctx context.Context, in models.StockOutInput) (*models.StockOut, error) {
	if _, err := s.Products(ctx, "", false); err != nil {
		if errors.Is(err, inventory.ErrUnauthorized) {
			return nil, fmt.Errorf("load stock levels: %w", err)
		}
		s.logger.Warn("stock levels unavailable, skipping stock check", zap.Int("product_id", in.ProductID), zap.Error(err))
	}
	if err := s.CheckStock(ctx, in); err != nil {
		return nil, err
	}
	stockOut, err := s.client.CreateStockOut(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create stock-out: %w", err)
	}
	var resourceID string
	if stockOut != nil {
		resourceID = stockOut.ID.String()
	}
	s.record(ctx, "create", ResourceStockOuts, resourceID, map[string]string{
		"product_id": strconv.Itoa(in.ProductID),
		"quantity":   strconv.Itoa(in.Quantity),
		"reason":     in.Reason,
	})
	s.afterMutation(ctx, ResourceStockOuts)
	return stockOut, nil
}

// SuppliesPage loads the supplies list and the product options concurrently.
func (s *Service) SuppliesPage(ctx context.Context) ([]models.Supply, []models.Product, error) {
	var (
		supplies []models.Supply
		products []models.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		supplies, err = s.Supplies(gctx)
		return err
	})
	g.Go(func() (err error) {
		products, err = s.Products(gctx, "", false)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return supplies, products, nil
}

// StockOutsPage loads the stock-out list and the product options concurrently.
func (s *Service) StockOutsPage(ctx context.Context) ([]models.StockOut, []models.Product, error) {
	var (
		stockOuts []models.StockOut
		products  []models.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stockOuts, err = s.StockOuts(gctx)
		return err
	})
	g.Go(func() (err error) {
		products, err = s.Products(gctx, "", false)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return stockOuts, products, nil
}

// afterMutation refetches the list the mutation changed and drops what it
// made stale. Stock movements change product stock levels, and every
// mutation changes the dashboard totals. A failed refetch does not undo a
// successful mutation.
func (s *Service) afterMutation(ctx context.Context, resource string) {
	scope := Scope(ctx)
	s.cache.Invalidate(scope, ResourceDashboard)
	if resource != ResourceProducts {
		s.cache.Invalidate(scope, ResourceProducts)
	}

	var err error
	switch resource {
	case ResourceProducts:
		s.cache.Invalidate(scope, ResourceProducts)
		_, err = s.Products(ctx, "", true)
	case ResourceSupplies:
		_, err = querycache.Reload(ctx, s.cache, querycache.NewKey(scope, ResourceSupplies, nil), s.client.ListSupplies)
	case ResourceStockOuts:
		_, err = querycache.Reload(ctx, s.cache, querycache.NewKey(scope, ResourceStockOuts, nil), s.client.ListStockOuts)
	}
	if err != nil {
		s.logger.Warn("refetch after mutation failed", zap.String("resource", resource), zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, action, resource, resourceID string, details map[string]string) {
	entry := models.AuditEntry{
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		SessionID:  Scope(ctx),
		Details:    details,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed", zap.String("action", action), zap.String("resource", resource), zap.Error(err))
	}
}
