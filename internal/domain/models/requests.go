package models

// Requests for forecast HTTP endpoints. Defined in domain for consistency and reuse.

type SummaryRequest struct {
	Date string `query:"date" json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type SnapshotRequest struct {
	Date    string `query:"date" json:"date" validate:"required,datetime=2006-01-02"`
	Symbols string `query:"symbols" json:"symbols"`
}

type SeriesRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required,max=32"`
	Limit  int    `query:"limit" json:"limit" default:"250" validate:"gte=1,lte=10000"`
}

type RefreshRequest struct {
	Mode    string   `json:"mode" default:"update" validate:"oneof=build update"`
	Symbols []string `json:"symbols" validate:"omitempty,dive,required,max=32"`
}
