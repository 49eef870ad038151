package server

import (
	"net/http"

	apperrors "github.com/forgeiq/forgeiq/internal/errors"
)

// HandleError writes err as an error envelope. Invoker failures keep their kind.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}
