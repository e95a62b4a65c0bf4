package model

// RawTransaction is a bank api or statement row before normalization.
// Amount is a decimal string in major units ("500000", "12.50", "-3.10").
type RawTransaction struct {
	TransactionID   string `json:"transactionID"`
	Amount          string `json:"amount"`
	Description     string `json:"description"`
	TransactionDate string `json:"transactionDate"`
	Type            string `json:"type"`
}

type RowError struct {
	TransactionID string `json:"transaction_id,omitempty"`
	Row           int    `json:"row"`
	Error         string `json:"error"`
}

type ProcessResult struct {
	Processed int                `json:"processed"`
	New       []*BankTransaction `json:"-"`
	Errors    []RowError         `json:"errors"`
}

type IngestResult struct {
	TotalFetched    int        `json:"total_fetched"`
	NewTransactions int        `json:"new_transactions"`
	MatchedCount    int        `json:"matched_count"`
	Errors          []RowError `json:"errors"`
}
