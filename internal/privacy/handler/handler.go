// Package handler exposes the privacy subsystem over HTTP. Handlers decode
// and validate, delegate to the services, and translate domain errors to
// status codes; no business rules live here.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"zykor/internal/platform/middleware"
	"zykor/internal/privacy/cleanup"
	"zykor/internal/privacy/compliance"
	"zykor/internal/privacy/consent"
	"zykor/internal/privacy/models"
	"zykor/internal/privacy/processing"
	"zykor/internal/privacy/request"
	"zykor/internal/privacy/retention"
	id "zykor/pkg/domain"
	dErrors "zykor/pkg/domain-errors"
	"zykor/pkg/platform/httputil"
)

// Handler wires the privacy services to HTTP routes.
type Handler struct {
	logger     *slog.Logger
	consents   *consent.Service
	processing *processing.Service
	requests   *request.Service
	compliance *compliance.Service
	cleanup    *cleanup.Service
	retention  *retention.Engine
}

// New creates the privacy HTTP handler.
func New(
	logger *slog.Logger,
	consents *consent.Service,
	processingSvc *processing.Service,
	requests *request.Service,
	complianceSvc *compliance.Service,
	cleanupSvc *cleanup.Service,
	retentionEngine *retention.Engine,
) *Handler {
	return &Handler{
		logger:     logger,
		consents:   consents,
		processing: processingSvc,
		requests:   requests,
		compliance: complianceSvc,
		cleanup:    cleanupSvc,
		retention:  retentionEngine,
	}
}

// Register mounts the privacy routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/privacy", func(r chi.Router) {
		r.Post("/consents", h.recordConsent)
		r.Post("/consents/withdraw", h.withdrawConsent)
		r.Get("/subjects/{subjectID}/consents", h.listConsents)
		r.Get("/subjects/{subjectID}/consents/active", h.checkActiveConsent)

		r.Post("/processing", h.logProcessing)

		r.Post("/requests", h.createRequest)
		r.Get("/requests", h.listRequests)
		r.Get("/requests/{requestID}", h.getRequest)
		r.Post("/requests/{requestID}/access", h.processAccess)
		r.Post("/requests/{requestID}/erasure", h.processErasure)
		r.Post("/requests/{requestID}/resolve", h.resolveRequest)

		r.Get("/compliance", h.checkCompliance)
		r.Get("/retention/policies", h.listRetentionPolicies)
		r.Post("/cleanup", h.runCleanup)
	})
}

func (h *Handler) recordConsent(w http.ResponseWriter, r *http.Request) {
	var req RecordConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.consents.RecordConsent(r.Context(), consent.RecordInput{
		SubjectID:    id.SubjectID(req.SubjectID),
		Purpose:      req.Purpose,
		LegalBasis:   models.LegalBasis(req.LegalBasis),
		ConsentGiven: req.ConsentGiven,
		Source:       req.Source,
		IPAddress:    clientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "record consent failed",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, newConsentResponse(rec))
}

func (h *Handler) withdrawConsent(w http.ResponseWriter, r *http.Request) {
	var req WithdrawConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	withdrawn, err := h.consents.WithdrawConsent(r.Context(), id.SubjectID(req.SubjectID), req.Purpose)
	if err != nil {
		h.logger.WarnContext(r.Context(), "withdraw consent failed",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, WithdrawResponse{Withdrawn: withdrawn})
}

func (h *Handler) listConsents(w http.ResponseWriter, r *http.Request) {
	subjectID, err := id.ParseSubjectID(chi.URLParam(r, "subjectID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	consents, err := h.consents.ListConsents(r.Context(), subjectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res := ConsentHistoryResponse{
		SubjectID: subjectID.String(),
		Consents:  make([]ConsentResponse, 0, len(consents)),
	}
	for _, c := range consents {
		res.Consents = append(res.Consents, newConsentResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) checkActiveConsent(w http.ResponseWriter, r *http.Request) {
	subjectID, err := id.ParseSubjectID(chi.URLParam(r, "subjectID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	purpose := strings.TrimSpace(r.URL.Query().Get("purpose"))
	if purpose == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "purpose query parameter is required"))
		return
	}

	active, err := h.consents.HasActiveConsent(r.Context(), subjectID, purpose)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ActiveConsentResponse{
		SubjectID: subjectID.String(),
		Purpose:   purpose,
		Active:    active,
	})
}

func (h *Handler) logProcessing(w http.ResponseWriter, r *http.Request) {
	var req LogProcessingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.processing.LogActivity(r.Context(), processing.LogInput{
		SubjectID:  id.SubjectID(req.SubjectID),
		Activity:   req.Activity,
		Purpose:    req.Purpose,
		LegalBasis: models.LegalBasis(req.LegalBasis),
		Categories: req.ToCategories(),
		System:     req.System,
		Automated:  req.Automated,
		Metadata:   req.Metadata,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "log processing activity failed",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, newProcessingResponse(rec))
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var req CreatePrivacyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	created, err := h.requests.CreateRequest(r.Context(), request.CreateInput{
		SubjectID:   id.SubjectID(req.SubjectID),
		Type:        models.RequestType(req.Type),
		Description: req.Description,
		Urgency:     models.Urgency(req.Urgency),
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "create privacy request failed",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, newRequestResponse(created))
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.requests.ListRequests(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res := RequestListResponse{Requests: make([]RequestResponse, 0, len(reqs))}
	for _, req := range reqs {
		res.Requests = append(res.Requests, newRequestResponse(req))
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, err := h.requests.GetRequest(r.Context(), requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newRequestResponse(req))
}

func (h *Handler) processAccess(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	body := decodeOptionalBody(r)

	export, err := h.requests.ProcessAccess(r.Context(), requestID, body.HandledBy)
	if err != nil {
		h.logger.WarnContext(r.Context(), "process access request failed",
			"error", err,
			"privacy_request_id", requestID.String(),
			"request_id", middleware.GetRequestID(r.Context()),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, export)
}

func (h *Handler) processErasure(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	body := decodeOptionalBody(r)

	result, err := h.requests.ProcessErasure(r.Context(), requestID, body.HandledBy)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "process erasure request failed",
			"error", err,
			"privacy_request_id", requestID.String(),
			"request_id", middleware.GetRequestID(r.Context()),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) resolveRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var body ResolveRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := body.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, err := h.requests.ResolveRequest(r.Context(), requestID, request.Outcome(body.Outcome), body.Response, body.HandledBy)
	if err != nil {
		h.logger.WarnContext(r.Context(), "resolve privacy request failed",
			"error", err,
			"privacy_request_id", requestID.String(),
			"request_id", middleware.GetRequestID(r.Context()),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newRequestResponse(req))
}

func (h *Handler) checkCompliance(w http.ResponseWriter, r *http.Request) {
	report, err := h.compliance.CheckCompliance(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "compliance check failed",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) listRetentionPolicies(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"policies": h.retention.Policies(),
	})
}

func (h *Handler) runCleanup(w http.ResponseWriter, r *http.Request) {
	summary, err := h.cleanup.Run(r.Context())
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeConflict) {
			h.logger.ErrorContext(r.Context(), "cleanup run failed",
				"error", err,
				"request_id", middleware.GetRequestID(r.Context()),
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

// decodeOptionalBody tolerates an empty or absent body: access and erasure
// processing only need the operator identity when one is supplied.
func decodeOptionalBody(r *http.Request) ProcessRequestBody {
	var body ProcessRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return ProcessRequestBody{}
	}
	return body
}

// clientIP extracts the caller address for consent evidence. The first
// X-Forwarded-For hop wins when a proxy fronts the service.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
