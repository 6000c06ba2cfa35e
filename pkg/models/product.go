package models

// Product is a catalog entry. Missing optional attributes are zero values.
type Product struct {
	ID          string   `json:"id" db:"id"`
	Name        string   `json:"name" db:"name"`
	Description string   `json:"description" db:"description"`
	Category    string   `json:"category" db:"category"`
	Price       float64  `json:"price" db:"price"`
	Tags        []string `json:"tags,omitempty" db:"tags"`
	Images      []string `json:"images,omitempty" db:"images"`
}

// ProductDetails is the display subset attached to recommendations.
type ProductDetails struct {
	Name     string   `json:"name"`
	Price    float64  `json:"price"`
	Category string   `json:"category"`
	Images   []string `json:"images"`
}

func (p Product) Details() ProductDetails {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return ProductDetails{
		Name:     p.Name,
		Price:    p.Price,
		Category: p.Category,
		Images:   images,
	}
}
