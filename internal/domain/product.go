package domain

// SourceProduct is a SmartKasa catalog entry. AlterCode is the key shared
// with the Syrve catalog.
type SourceProduct struct {
	ID          ExternalID `json:"id"`
	DisplayName string     `json:"alter_title"`
	AlterCode   string     `json:"alter_number"`
}

// TargetProduct is a Syrve nomenclature entry.
type TargetProduct struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Catalog is the Syrve nomenclature fetched once per run.
type Catalog struct {
	Products []TargetProduct
}

// FindByCode returns the first product whose code equals code exactly.
// Codes are compared as-is, without case folding or trimming.
func (c *Catalog) FindByCode(code string) (TargetProduct, bool) {
	if c == nil || code == "" {
		return TargetProduct{}, false
	}
	for _, p := range c.Products {
		if p.Code == code {
			return p, true
		}
	}
	return TargetProduct{}, false
}

// Len returns the number of products in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Products)
}
