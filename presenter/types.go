package presenter

type TokenStatusInfo struct {
	Address          string
	Link             string `json:",omitempty"`
	Phase            string
	LastIndexedBlock *uint  `json:",omitempty"`
	Message          string
	Error            string `json:",omitempty"`
}

type StatusResult struct {
	ChainID string
	State   string
	Tokens  []*TokenStatusInfo
}

type HealthResult struct {
	State   string
	Healthy bool
}
