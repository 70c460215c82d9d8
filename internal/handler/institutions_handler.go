package handler

import (
	"encoding/json"
	"mime"
	"net/http"

	"github.com/boddenberg/cashy-bfa-go/internal/domain"
	"github.com/boddenberg/cashy-bfa-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Institution Handlers
// ============================================================

const maxLinkBody = 64 << 10

func listInstitutionsHandler(svc *service.LinkService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /institutions")
		defer span.End()

		list, err := svc.ListInstitutions(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func linkInstitutionHandler(svc *service.LinkService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /institutions")
		defer span.End()

		req, err := decodeLinkRequest(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := svc.Link(ctx, UserIDFromContext(ctx), req.PublicToken, req.Institution)
		if err != nil {
			handleWriteError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	}
}

// decodeLinkRequest accepts a JSON body or a classic form post.
func decodeLinkRequest(w http.ResponseWriter, r *http.Request) (domain.LinkRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxLinkBody)

	var req domain.LinkRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}

	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.PublicToken = r.PostForm.Get("public_token")
	req.Institution = r.PostForm.Get("institution")
	return req, nil
}
