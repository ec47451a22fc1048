package domain

// ValuePerSheet is the payout per printed sheet, in reais.
const ValuePerSheet = 0.05

// MaxImageBytes bounds the inline photo payload (data URL included).
const MaxImageBytes = 800 * 1024

// ProductInfo describes one entry of the fixed product catalog.
type ProductInfo struct {
	Sheets int
	Value  float64
}

// ProductOptions lists the catalog in menu order.
var ProductOptions = []string{"Regata", "Short", "Conjunto", "Camisa", "Bandeira", "Basqueteira"}

// Products maps product name to payout data. Bandeira is flat-priced; every
// other product is paid per sheet.
var Products = map[string]ProductInfo{
	"Regata":      {Sheets: 2, Value: 2 * ValuePerSheet},
	"Short":       {Sheets: 2, Value: 2 * ValuePerSheet},
	"Conjunto":    {Sheets: 5, Value: 5 * ValuePerSheet},
	"Camisa":      {Sheets: 3, Value: 3 * ValuePerSheet},
	"Bandeira":    {Value: 3.00},
	"Basqueteira": {Sheets: 2, Value: 2 * ValuePerSheet},
}

// KnownProduct reports whether name is in the catalog.
func KnownProduct(name string) bool {
	_, ok := Products[name]
	return ok
}

// Value returns the payout for quantity units of product. Unknown products
// are worth zero.
func Value(product string, quantity int) float64 {
	info, ok := Products[product]
	if !ok {
		return 0
	}
	return info.Value * float64(quantity)
}
