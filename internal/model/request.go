package model

// PopulateRequest asks for a set of attributes to be populated for one
// catalog item.
type PopulateRequest struct {
	ClientID   string      `json:"clientId"`
	Flow       string      `json:"flow"`
	Language   string      `json:"language"`
	Label      string      `json:"label"`
	Attributes []Attribute `json:"attributes"`
}

// FindAttribute returns the attribute with the given code, or nil.
func (r *PopulateRequest) FindAttribute(code string) *Attribute {
	for i := range r.Attributes {
		if r.Attributes[i].Code == code {
			return &r.Attributes[i]
		}
	}
	return nil
}

// PopulatedAttribute is one successfully populated attribute in a response.
type PopulatedAttribute struct {
	ID         int64    `json:"id"`
	Code       string   `json:"code"`
	Value      Value    `json:"value"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
	SourceURLs []string `json:"sourceUrls,omitempty"`
}

// PopulateResponse carries the populated attributes plus the codes that could
// not be populated. A failed attribute is never an error, only an entry in
// UnpopulatedAttributeCodes.
type PopulateResponse struct {
	PopulatedAttributes       []PopulatedAttribute `json:"populatedAttributes"`
	UnpopulatedAttributeCodes []string             `json:"unpopulatedAttributeCodes"`
}
