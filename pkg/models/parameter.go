package models

// Parameter represents a single fitted or derived physical quantity
type Parameter struct {
	Group  string  `json:"group,omitempty" doc:"Data subset the parameter belongs to (e.g. '1 kHz', 'forward')"`
	Name   string  `json:"name" doc:"Parameter name"`
	Symbol string  `json:"symbol,omitempty" doc:"Conventional symbol (e.g. 'N_d', 'V_fb')"`
	Value  float64 `json:"value" doc:"Best estimate"`
	StdErr float64 `json:"std_err" doc:"Standard error, 0 when not estimated"`
	Unit   string  `json:"unit,omitempty" doc:"Physical unit of value and std_err"`
	Verb   string  `json:"-"` // fmt verb used by console reports, e.g. "%.2e"
}

// HasError reports whether the parameter carries an uncertainty
func (p Parameter) HasError() bool {
	return p.StdErr > 0
}
