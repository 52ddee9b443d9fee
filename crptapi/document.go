/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package crptapi

// Document is a document introducing goods into circulation.
// Field names follow the remote API, values are passed through as is.
type Document struct {
	Description    string `json:"description"`
	ParticipantInn string `json:"participantInn"`
	DocID          string `json:"docId"`
	DocStatus      string `json:"docStatus"`
	DocType        string `json:"docType"`
	ImportRequest  bool   `json:"importRequest"`
	ProductionDate string `json:"productionDate"`
	ProductionType string `json:"productionType"`
}

// SignedSubmission is the request body of the document creation call.
type SignedSubmission struct {
	Document  Document `json:"document"`
	Signature string   `json:"signature"`
}
