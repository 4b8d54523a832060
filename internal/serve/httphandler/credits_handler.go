package httphandler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stellar/go/support/render/httpjson"

	"github.com/gridx-network/gridx-coordinator/internal/credits"
	"github.com/gridx-network/gridx-coordinator/internal/serve/httperror"
	"github.com/gridx-network/gridx-coordinator/internal/utils"
)

type CreditsHandler struct {
	Engine *credits.Engine
}

type CreditsResponse struct {
	UserID    string  `json:"user_id"`
	Balance   float64 `json:"balance"`
	Timestamp float64 `json:"timestamp"`
}

// GetCredits returns the user's balance. First reference provisions the
// account with the starting grant, so new users see a balance, not a 404.
func (h CreditsHandler) GetCredits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := chi.URLParam(r, "user_id")
	if !utils.IsValidUserID(userID) {
		httperror.BadRequest(fmt.Sprintf("Invalid user_id: %s", userID), nil, nil).Render(w)
		return
	}

	balance, err := h.Engine.Balance(ctx, userID)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve balance", err, nil).Render(w)
		return
	}

	httpjson.Render(w, CreditsResponse{
		UserID:    userID,
		Balance:   balance,
		Timestamp: utils.NowEpoch(),
	}, httpjson.JSON)
}
