package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperengineering/smartshop/internal/account"
	"github.com/hyperengineering/smartshop/internal/docstore"
	"github.com/hyperengineering/smartshop/internal/media"
	"github.com/hyperengineering/smartshop/internal/types"
	"github.com/hyperengineering/smartshop/internal/validation"
)

// Handler implements the API handlers
type Handler struct {
	docs      *docstore.Store
	accounts  *account.Service
	images    media.Store
	publicURL string
	version   string
}

// NewHandler creates a new Handler. publicURL is the externally reachable
// base URL used when building image links.
func NewHandler(docs *docstore.Store, accounts *account.Service, images media.Store, publicURL, version string) *Handler {
	return &Handler{
		docs:      docs,
		accounts:  accounts,
		images:    images,
		publicURL: strings.TrimRight(publicURL, "/"),
		version:   version,
	}
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.docs.GetStats(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		DocumentCount: stats.DocumentCount,
	})
}

// ListDocuments handles GET /api/v1/collections/{collection}/documents
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	collection, ok := h.collectionParam(w, r)
	if !ok {
		return
	}

	docs, err := h.docs.List(r.Context(), collection)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, types.SnapshotResponse{Collection: collection, Documents: docs})
}

// AddDocument handles POST /api/v1/collections/{collection}/documents
func (h *Handler) AddDocument(w http.ResponseWriter, r *http.Request) {
	collection, ok := h.collectionParam(w, r)
	if !ok {
		return
	}

	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}

	doc, err := h.docs.Add(r.Context(), collection, fields)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	slog.Info("document added",
		"component", "api",
		"action", "add_document",
		"collection", collection,
		"document_id", doc.ID,
	)

	writeJSON(w, http.StatusCreated, types.AddDocumentResponse{ID: doc.ID})
}

// SetDocument handles PUT /api/v1/collections/{collection}/documents/{id}
func (h *Handler) SetDocument(w http.ResponseWriter, r *http.Request) {
	collection, ok := h.collectionParam(w, r)
	if !ok {
		return
	}
	id, ok := documentIDParam(w, r)
	if !ok {
		return
	}

	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}

	if err := h.docs.Set(r.Context(), collection, id, fields); err != nil {
		MapStoreError(w, r, err)
		return
	}

	slog.Info("document set",
		"component", "api",
		"action", "set_document",
		"collection", collection,
		"document_id", id,
	)

	doc := types.Document{ID: id, DocumentFields: fields}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /api/v1/collections/{collection}/documents/{id}.
// Deleting a missing document succeeds.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	collection, ok := h.collectionParam(w, r)
	if !ok {
		return
	}
	id, ok := documentIDParam(w, r)
	if !ok {
		return
	}

	if err := h.docs.Delete(r.Context(), collection, id); err != nil {
		MapStoreError(w, r, err)
		return
	}

	slog.Info("document deleted",
		"component", "api",
		"action", "delete_document",
		"collection", collection,
		"document_id", id,
	)

	w.WriteHeader(http.StatusNoContent)
}

// documentIDParam reads the {id} path parameter. Document IDs are ULIDs
// minted by AddDocument; anything else is rejected with 422.
func documentIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if verr := validation.ValidateULID("id", id); verr != nil {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", []validation.ValidationError{*verr})
		return "", false
	}
	return id, true
}

// SignUp handles POST /api/v1/auth/signup
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := h.accounts.SignUp(r.Context(), creds.Email, creds.Password)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	slog.Info("user signed up",
		"component", "api",
		"action", "signup",
		"user_id", user.ID,
	)

	writeJSON(w, http.StatusCreated, user)
}

// Login handles POST /api/v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var creds types.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	token, err := h.accounts.Login(r.Context(), creds.Email, creds.Password)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			slog.Warn("login failed",
				"component", "api",
				"action", "login",
				"remote_ip", r.RemoteAddr,
			)
		}
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, token)
}

// PasswordReset handles POST /api/v1/auth/password-reset. The response is
// 202 whether or not the email belongs to an account.
func (h *Handler) PasswordReset(w http.ResponseWriter, r *http.Request) {
	var req types.PasswordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if verr := validation.ValidateRequired("email", req.Email); verr != nil {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", []validation.ValidationError{*verr})
		return
	}

	recorded, err := h.accounts.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	slog.Info("password reset requested",
		"component", "api",
		"action", "password_reset",
		"recorded", recorded,
	)

	w.WriteHeader(http.StatusAccepted)
}

// UploadImage handles POST /api/v1/images (multipart field "image").
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxImageSize+1<<20)

	file, header, err := r.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			MapStoreError(w, r, media.ErrTooLarge)
			return
		}
		WriteProblem(w, r, http.StatusBadRequest, "Missing multipart field \"image\"")
		return
	}
	defer file.Close()

	name, err := h.images.Save(r.Context(), file, header.Filename)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	slog.Info("image uploaded",
		"component", "api",
		"action", "upload_image",
		"name", name,
	)

	writeJSON(w, http.StatusCreated, types.ImageResponse{URL: h.publicURL + media.ImagesPath + "/" + name})
}

// GetImage handles GET /api/v1/images/{name}. Stores that can presign
// answer with a redirect to the object itself.
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if p, ok := h.images.(media.Presigner); ok {
		url, _, err := p.PresignedURL(r.Context(), name)
		if err != nil {
			MapStoreError(w, r, err)
			return
		}
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
		return
	}

	f, modTime, err := h.images.Open(r.Context(), name)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	defer f.Close()

	http.ServeContent(w, r, name, modTime, f)
}

// DeleteImage handles DELETE /api/v1/images/{name}
func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.images.Remove(r.Context(), name); err != nil {
		MapStoreError(w, r, err)
		return
	}

	slog.Info("image deleted",
		"component", "api",
		"action", "delete_image",
		"name", name,
	)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) collectionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	collection := chi.URLParam(r, "collection")
	if verr := validation.ValidateCollection("collection", collection); verr != nil {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", []validation.ValidationError{*verr})
		return "", false
	}
	return collection, true
}

func decodeFields(w http.ResponseWriter, r *http.Request) (types.DocumentFields, bool) {
	var fields types.DocumentFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return fields, false
	}
	if errs := validation.ValidateProductFields(fields); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return fields, false
	}
	return fields, true
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (types.Credentials, bool) {
	var creds types.Credentials
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&creds); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return creds, false
	}
	if errs := validation.ValidateCredentials(creds); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return creds, false
	}
	return creds, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
