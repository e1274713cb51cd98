// Package handler exposes the certificate HTTP surface: issuance (fresh
// render or augmented upload), public verification, revocation, and the
// issuer's own listings.
package handler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"certledger/internal/certificates"
	"certledger/internal/issuance"
	ledgermodels "certledger/internal/ledger/models"
	"certledger/internal/platform/middleware"
	"certledger/internal/verification"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/httputil"
	"certledger/pkg/requestcontext"
)

const maxUploadBytes = 16 << 20

type Handler struct {
	logger   *slog.Logger
	issuance *issuance.Service
	verifier *verification.Service
	certs    *certificates.Service
	auth     *middleware.IssuerAuthenticator
}

func New(
	issuanceSvc *issuance.Service,
	verifier *verification.Service,
	certs *certificates.Service,
	auth *middleware.IssuerAuthenticator,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		logger:   logger,
		issuance: issuanceSvc,
		verifier: verifier,
		certs:    certs,
		auth:     auth,
	}
}

// Register mounts the certificate routes. Verification is public; everything
// else requires an issuer token.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/certificates/verify", h.handleVerify)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireIssuer(h.auth, h.logger))
		r.Post("/api/certificates/issue/template", h.handleIssueTemplate)
		r.Post("/api/certificates/issue/upload", h.handleIssueUpload)
		r.Post("/api/certificates/{certificateId}/revoke", h.handleRevoke)
		r.Get("/api/certificates/{certificateId}/events", h.handleEvents)
		r.Get("/api/certificates/mine", h.handleMine)
		r.Get("/api/certificates/mine/download", h.handleMineDownload)
	})
}

type issueTemplateRequest struct {
	CertificateJSON json.RawMessage `json:"certificateJson"`
	Signature       string          `json:"signature"`
}

func (h *Handler) handleIssueTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[issueTemplateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	data, err := parseCertificateJSON(req.CertificateJSON)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.issuance.Issue(ctx, requestcontext.IssuerID(ctx), issuance.IssueRequest{
		CertificateData: data,
		Signature:       req.Signature,
	})
	if err != nil {
		h.writeIssueError(w, r, err)
		return
	}
	h.writeIssueResponse(w, result)
}

func (h *Handler) handleIssueUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	original, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	data, err := parseCertificateJSON([]byte(r.FormValue("certificateJson")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.issuance.Issue(ctx, requestcontext.IssuerID(ctx), issuance.IssueRequest{
		CertificateData:  data,
		Signature:        r.FormValue("signature"),
		OriginalDocument: original,
	})
	if err != nil {
		h.writeIssueError(w, r, err)
		return
	}
	h.writeIssueResponse(w, result)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	doc, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	result, err := h.verifier.VerifyDocument(ctx, doc)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "verification failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	body := map[string]any{
		"verdict": result.Verdict,
		"checks":  result.Checks,
	}
	if result.Reason != "" {
		body["reason"] = result.Reason
	}
	if result.Record != nil {
		body["ledger"] = ledgerSnapshot(result.Record)
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certificateID := chi.URLParam(r, "certificateId")

	// An empty body means revocation without a stated reason.
	var req revokeRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	result, err := h.certs.Revoke(ctx, requestcontext.IssuerID(ctx), certificateID, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	body := map[string]any{
		"status":        result.Outcome,
		"certificateId": result.Record.CertificateID,
	}
	if result.Record.RevokedAt != nil {
		body["revokedAt"] = result.Record.RevokedAt.UTC().Format(time.RFC3339)
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certificateID := chi.URLParam(r, "certificateId")

	events, err := h.certs.Events(ctx, requestcontext.IssuerID(ctx), certificateID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	views := make([]map[string]any, 0, len(events))
	for _, e := range events {
		view := map[string]any{
			"eventType":     e.EventType,
			"eventHash":     e.EventHash,
			"prevEventHash": e.PrevEventHash,
			"createdAt":     e.CreatedAt.UTC().Format(time.RFC3339),
		}
		if e.Payload != nil {
			view["payload"] = e.Payload
		}
		views = append(views, view)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"certificateId": certificateID,
		"events":        views,
	})
}

func (h *Handler) handleMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := h.certs.ListByIssuer(ctx, requestcontext.IssuerID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	views := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		views = append(views, ledgerSnapshot(rec))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"certificates": views})
}

func (h *Handler) handleMineDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	csvBytes, err := h.certs.ExportCSV(ctx, requestcontext.IssuerID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="certificates.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(csvBytes)
}

// readUpload pulls the document bytes out of a multipart "pdf" field, or
// falls back to the raw body for clients that POST the document directly.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err == nil {
		file, _, fileErr := r.FormFile("pdf")
		if fileErr != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "multipart field \"pdf\" is required"))
			return nil, false
		}
		defer file.Close()
		doc, readErr := io.ReadAll(file)
		if readErr != nil {
			httputil.WriteError(w, dErrors.Wrap(readErr, dErrors.CodeBadRequest, "failed to read uploaded document"))
			return nil, false
		}
		return doc, true
	}

	doc, err := io.ReadAll(r.Body)
	if err != nil || len(doc) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "document upload is required"))
		return nil, false
	}
	return doc, true
}

func (h *Handler) writeIssueError(w http.ResponseWriter, r *http.Request, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), "issuance failed",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

func (h *Handler) writeIssueResponse(w http.ResponseWriter, result *issuance.IssueResult) {
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"status":          "issued",
		"certificateId":   result.Record.CertificateID,
		"hash":            result.DocumentHash,
		"canonicalHash":   result.CanonicalHash,
		"pdfBase64":       base64.StdEncoding.EncodeToString(result.Document),
		"verificationUrl": result.VerificationURL,
	})
}

// parseCertificateJSON accepts the certificate either as an inline JSON
// object or as a JSON-encoded string of one (the form-field case). Numbers
// stay json.Number so re-canonicalization matches what the caller signed.
func parseCertificateJSON(raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "certificateJson is required")
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed certificateJson")
		}
		raw = []byte(inner)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed certificateJson")
	}
	return data, nil
}

func ledgerSnapshot(rec *ledgermodels.RecordView) map[string]any {
	snapshot := map[string]any{
		"certificateId":   rec.CertificateID,
		"status":          rec.Status,
		"issuedAt":        rec.IssuedAt.UTC().Format(time.RFC3339),
		"canonicalHash":   rec.CanonicalHash,
		"documentHash":    rec.DocumentHash,
		"verificationUrl": rec.VerificationURL,
		"certificateData": rec.CertificateData,
	}
	if rec.RevokedAt != nil {
		snapshot["revokedAt"] = rec.RevokedAt.UTC().Format(time.RFC3339)
		snapshot["revocationReason"] = rec.RevocationReason
	}
	if rec.ExpiredAt != nil {
		snapshot["expiredAt"] = rec.ExpiredAt.UTC().Format(time.RFC3339)
	}
	return snapshot
}
