package inventory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockapp/internal/domain/models"
)

// ErrUnauthorized is matched by any API response that signals a missing,
// invalid or expired bearer token.
var ErrUnauthorized = errors.New("inventory api: unauthorized")

// MethodOverrideParam carries the real verb for multipart updates, which are
// sent as POST because the API only parses multipart bodies on POST.
const MethodOverrideParam = "_method"

// Client exposes the inventory REST API operations used by the dashboard.
type Client interface {
	Login(ctx context.Context, creds models.Credentials) (*models.AuthResponse, error)
	Register(ctx context.Context, reg models.Registration) (*models.AuthResponse, error)
	DashboardStats(ctx context.Context) (*models.DashboardStats, error)
	ListProducts(ctx context.Context, search string) ([]models.Product, error)
	CreateProduct(ctx context.Context, in models.ProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, id models.ID, in models.ProductInput) (*models.Product, error)
	DeleteProduct(ctx context.Context, id models.ID) error
	ListSupplies(ctx context.Context) ([]models.Supply, error)
	CreateSupply(ctx context.Context, in models.SupplyInput) (*models.Supply, error)
	ListStockOuts(ctx context.Context) ([]models.StockOut, error)
	CreateStockOut(ctx context.Context, in models.StockOutInput) (*models.StockOut, error)
}

// TokenSource resolves the bearer token for an outgoing request. An empty
// token sends the request without an Authorization header.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken always returns the same token.
func StaticToken(token string) TokenSource {
	return TokenFunc(func(context.Context) (string, error) { return token, nil })
}

// CallObserver is notified after every completed API call.
type CallObserver func(method, route string, status int, elapsed time.Duration)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string][]string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("inventory api error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("inventory api error: status=%d, message=%s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 and 419 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && (e.StatusCode == http.StatusUnauthorized || e.StatusCode == 419)
}

// apiErrorBody mirrors the API's error payload.
type apiErrorBody struct {
	Message string              `json:"message"`
	Error   string              `json:"error"`
	Errors  map[string][]string `json:"errors"`
}

// Options configures an APIClient.
type Options struct {
	BaseURL  string
	Timeout  time.Duration
	Tokens   TokenSource
	Logger   *zap.Logger
	Observer CallObserver
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
	observer   CallObserver
}

// NewClient builds an inventory API client. Every request picks up its bearer
// token from opts.Tokens.
func NewClient(opts Options) *APIClient {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	restyClient := resty.New().
		SetBaseURL(strings.TrimSuffix(opts.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetLogger(logger.Sugar())

	if opts.Tokens != nil {
		tokens := opts.Tokens
		restyClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			token, err := tokens.Token(req.Context())
			if err != nil {
				return fmt.Errorf("resolve bearer token: %w", err)
			}
			if token != "" {
				req.SetAuthToken(token)
			}
			return nil
		})
	}

	return &APIClient{
		httpClient: restyClient,
		logger:     logger,
		observer:   opts.Observer,
	}
}

// Login exchanges credentials for a token.
func (c *APIClient) Login(ctx context.Context, creds models.Credentials) (*models.AuthResponse, error) {
	return c.authenticate(ctx, "/login", creds)
}

// Register creates an account and returns its token.
func (c *APIClient) Register(ctx context.Context, reg models.Registration) (*models.AuthResponse, error) {
	return c.authenticate(ctx, "/register", reg)
}

func (c *APIClient) authenticate(ctx context.Context, path string, body any) (*models.AuthResponse, error) {
	var out struct {
		models.AuthResponse
		AccessToken string `json:"access_token"`
	}
	err := c.do(ctx, http.MethodPost, path, path, func(r *resty.Request) {
		r.SetHeader("Content-Type", "application/json").SetBody(body)
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Token == "" {
		out.Token = out.AccessToken
	}
	if out.Token == "" {
		return nil, fmt.Errorf("%s: response carried no token", path)
	}
	return &out.AuthResponse, nil
}

// DashboardStats fetches the aggregate dashboard payload.
func (c *APIClient) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	stats := new(models.DashboardStats)
	if err := c.do(ctx, http.MethodGet, "/dashboard/stats", "/dashboard/stats", nil, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// ListProducts fetches products, optionally filtered by a search term.
func (c *APIClient) ListProducts(ctx context.Context, search string) ([]models.Product, error) {
	products := make([]models.Product, 0)
	err := c.do(ctx, http.MethodGet, "/products", "/products", func(r *resty.Request) {
		if search != "" {
			r.SetQueryParam("search", search)
		}
	}, &products)
	if err != nil {
		return nil, err
	}
	return products, nil
}

// CreateProduct posts a multipart product.
func (c *APIClient) CreateProduct(ctx context.Context, in models.ProductInput) (*models.Product, error) {
	product := new(models.Product)
	err := c.do(ctx, http.MethodPost, "/products", "/products", func(r *resty.Request) {
		setProductForm(r, in)
	}, product)
	if err != nil {
		return nil, err
	}
	return product, nil
}

// UpdateProduct sends the multipart update as POST with the method override marker.
func (c *APIClient) UpdateProduct(ctx context.Context, id models.ID, in models.ProductInput) (*models.Product, error) {
	if id == "" {
		return nil, errors.New("update product: empty id")
	}
	product := new(models.Product)
	err := c.do(ctx, http.MethodPost, "/products/"+url.PathEscape(id.String()), "/products/{id}", func(r *resty.Request) {
		r.SetQueryParam(MethodOverrideParam, http.MethodPut)
		setProductForm(r, in)
	}, product)
	if err != nil {
		return nil, err
	}
	return product, nil
}

// DeleteProduct removes a product.
func (c *APIClient) DeleteProduct(ctx context.Context, id models.ID) error {
	if id == "" {
		return errors.New("delete product: empty id")
	}
	return c.do(ctx, http.MethodDelete, "/products/"+url.PathEscape(id.String()), "/products/{id}", nil, nil)
}

// ListSupplies fetches every recorded supply.
func (c *APIClient) ListSupplies(ctx context.Context) ([]models.Supply, error) {
	supplies := make([]models.Supply, 0)
	if err := c.do(ctx, http.MethodGet, "/supplies", "/supplies", nil, &supplies); err != nil {
		return nil, err
	}
	return supplies, nil
}

// CreateSupply records a supply.
func (c *APIClient) CreateSupply(ctx context.Context, in models.SupplyInput) (*models.Supply, error) {
	supply := new(models.Supply)
	err := c.do(ctx, http.MethodPost, "/supplies", "/supplies", func(r *resty.Request) {
		r.SetHeader("Content-Type", "application/json").SetBody(in)
	}, supply)
	if err != nil {
		return nil, err
	}
	return supply, nil
}

// ListStockOuts fetches every recorded stock-out.
func (c *APIClient) ListStockOuts(ctx context.Context) ([]models.StockOut, error) {
	stockOuts := make([]models.StockOut, 0)
	if err := c.do(ctx, http.MethodGet, "/stock-outs", "/stock-outs", nil, &stockOuts); err != nil {
		return nil, err
	}
	return stockOuts, nil
}

// CreateStockOut records a stock-out.
func (c *APIClient) CreateStockOut(ctx context.Context, in models.StockOutInput) (*models.StockOut, error) {
	stockOut := new(models.StockOut)
	err := c.do(ctx, http.MethodPost, "/stock-outs", "/stock-outs", func(r *resty.Request) {
		r.SetHeader("Content-Type", "application/json").SetBody(in)
	}, stockOut)
	if err != nil {
		return nil, err
	}
	return stockOut, nil
}

func setProductForm(r *resty.Request, in models.ProductInput) {
	r.SetMultipartFormData(map[string]string{
		"name":          in.Name,
		"current_stock": strconv.Itoa(in.CurrentStock),
		"price":         strconv.FormatFloat(in.Price, 'f', -1, 64),
	})
	if in.Image != nil && in.Image.Content != nil {
		r.SetFileReader("image", in.Image.Filename, in.Image.Content)
	}
}

// do executes one request. Any non-2xx status becomes an *APIError; the body
// of a 2xx response is decoded into out when out is non-nil. Bodies are read
// as JSON whatever content type the API declares, and an empty 2xx body
// leaves out untouched.
func (c *APIClient) do(ctx context.Context, method, path, route string, configure func(*resty.Request), out any) error {
	errBody := new(apiErrorBody)
	req := c.httpClient.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetError(errBody)
	if out != nil {
		req.SetResult(out)
	}
	if configure != nil {
		configure(req)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	elapsed := time.Since(start)
	if resp == nil || resp.RawResponse == nil {
		c.observe(method, route, 0, elapsed)
		return fmt.Errorf("%s %s: %w", method, route, err)
	}

	status := resp.StatusCode()
	c.observe(method, route, status, elapsed)
	c.logger.Debug("inventory api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Duration("duration", elapsed))

	if !resp.IsSuccess() {
		return newAPIError(status, errBody)
	}
	if err != nil {
		if len(bytes.TrimSpace(resp.Body())) == 0 {
			return nil
		}
		return fmt.Errorf("decode %s %s response: %w", method, route, err)
	}
	return nil
}

func (c *APIClient) observe(method, route string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer(method, route, status, elapsed)
	}
}

func newAPIError(status int, body *apiErrorBody) *APIError {
	apiErr := &APIError{StatusCode: status, Message: body.Message, Fields: body.Errors}
	if apiErr.Message == "" {
		apiErr.Message = body.Error
	}
	return apiErr
}
