package api

type queryRequest struct {
	Query   string `json:"query"`
	FileURL string `json:"fileUrl"`
}

type decisionResponse struct {
	Decision      string  `json:"decision"`
	Amount        float64 `json:"amount"`
	Justification string  `json:"justification"`
}
