package gql

import (
	"encoding/json"
	"net/http"

	"canvas-notes-backend/pkg/utils"

	"github.com/graphql-go/graphql"
)

// graphqlRequest is the standard POST body shape.
type graphqlRequest struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

// Handler serves GraphQL over HTTP POST.
type Handler struct {
	schema graphql.Schema
}

// NewHandler builds the HTTP handler for a compiled schema.
func NewHandler(schema graphql.Schema) *Handler {
	return &Handler{schema: schema}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req graphqlRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		utils.WriteBadRequestResponse(w, "Missing query")
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        r.Context(),
	})

	// GraphQL responses are always 200; errors travel in the errors
	// array with extensions.code set by the service layer.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
