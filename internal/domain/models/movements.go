package models

// Supply is a recorded intake of stock from a supplier.
type Supply struct {
	ID           ID          `json:"id"`
	ProductID    ID          `json:"product_id"`
	ProductName  string      `json:"product_name"`
	Product      *ProductRef `json:"product"`
	Quantity     int         `json:"quantity"`
	SupplierName string      `json:"supplier_name"`
	CreatedAt    Timestamp   `json:"created_at"`
}

// DisplayProductName prefers the embedded product over the flattened name.
func (s Supply) DisplayProductName() string {
	return productLabel(s.Product, s.ProductName)
}

// SupplyInput is the JSON payload for POST /supplies.
type SupplyInput struct {
	ProductID    int    `json:"product_id"`
	Quantity     int    `json:"quantity"`
	SupplierName string `json:"supplier_name"`
}

// StockOut is a recorded removal of stock.
type StockOut struct {
	ID          ID          `json:"id"`
	ProductID   ID          `json:"product_id"`
	ProductName string      `json:"product_name"`
	Product     *ProductRef `json:"product"`
	Quantity    int         `json:"quantity"`
	Reason      string      `json:"reason"`
	CreatedAt   Timestamp   `json:"created_at"`
}

// DisplayProductName prefers the embedded product over the flattened name.
func (s StockOut) DisplayProductName() string {
	return productLabel(s.Product, s.ProductName)
}

// StockOutInput is the JSON payload for POST /stock-outs.
type StockOutInput struct {
	ProductID int    `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

func productLabel(ref *ProductRef, fallback string) string {
	if ref != nil && ref.Name != "" {
		return ref.Name
	}
	return fallback
}
