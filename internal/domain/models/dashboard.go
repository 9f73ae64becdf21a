package models

// DashboardStats is the server-computed aggregate behind the dashboard page.
type DashboardStats struct {
	TotalProducts       int                   `json:"total_products"`
	TotalSupplies       int                   `json:"total_supplies"`
	TotalStockOuts      int                   `json:"total_stock_outs"`
	RecentActivities    RecentActivities      `json:"recent_activities"`
	StockEvolution      []StockEvolutionPoint `json:"stock_evolution"`
	ProductDistribution []ProductStock        `json:"product_distribution"`
}

// RecentActivities lists the latest movements in both directions.
type RecentActivities struct {
	Supplies  []Activity `json:"supplies"`
	StockOuts []Activity `json:"stock_outs"`
}

// Activity is a compact movement row.
type Activity struct {
	ID          ID        `json:"id"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	CreatedAt   Timestamp `json:"created_at"`
}

// StockEvolutionPoint is one sample of the total stock time series.
type StockEvolutionPoint struct {
	Date  string `json:"date"`
	Stock int    `json:"stock"`
}

// ProductStock is one bar of the per-product distribution chart.
type ProductStock struct {
	Name  string `json:"name"`
	Stock int    `json:"stock"`
}
