// Package api exposes the asset engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skillforge/assetengine/internal/assets"
	"github.com/skillforge/assetengine/internal/auth"
	"github.com/skillforge/assetengine/internal/config"
	"github.com/skillforge/assetengine/internal/entitlement"
	"github.com/skillforge/assetengine/internal/logging"
	"github.com/skillforge/assetengine/internal/metrics"
	"github.com/skillforge/assetengine/internal/model"
	"github.com/skillforge/assetengine/internal/storage"
	"github.com/skillforge/assetengine/internal/transform"
)

// Package-level compiled regex for Range header parsing.
var rangeRegex = regexp.MustCompile(`bytes=(\d*)-(\d*)`)

// Server is the HTTP server.
type Server struct {
	metadata   assets.MetadataGateway
	backend    storage.Backend
	auth       *auth.Auth
	validator  *assets.Validator
	uploader   *assets.Uploader
	deleter    *assets.Deleter
	reconciler *assets.Reconciler
	verifier   *assets.Verifier
	resolver   entitlement.Resolver
	pipeline   *transform.Pipeline
	keys       assets.KeyScheme
	config     *config.Config

	// healthCheck pings the metadata store; nil skips the probe.
	healthCheck func(ctx context.Context) error
}

// NewServer creates a new server.
func NewServer(
	metadata assets.MetadataGateway,
	backend storage.Backend,
	authHandler *auth.Auth,
	validator *assets.Validator,
	uploader *assets.Uploader,
	deleter *assets.Deleter,
	reconciler *assets.Reconciler,
	verifier *assets.Verifier,
	resolver entitlement.Resolver,
	pipeline *transform.Pipeline,
	keys assets.KeyScheme,
	cfg *config.Config,
	healthCheck func(ctx context.Context) error,
) *Server {
	return &Server{
		metadata:    metadata,
		backend:     backend,
		auth:        authHandler,
		validator:   validator,
		uploader:    uploader,
		deleter:     deleter,
		reconciler:  reconciler,
		verifier:    verifier,
		resolver:    resolver,
		pipeline:    pipeline,
		keys:        keys,
		config:      cfg,
		healthCheck: healthCheck,
	}
}

// Handler returns the HTTP handler with auth, logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Delivery endpoints: anonymous requests pass through, entitlement
	// decides what they may see.
	mux.Handle("GET /api/v1/assets/download/{entityType}/{entityId}",
		s.auth.Optional(http.HandlerFunc(s.handleDownload)))
	mux.Handle("GET /api/v1/assets/image/{entityType}/{entityId}/{filename}",
		s.auth.Optional(http.HandlerFunc(s.handleImage)))

	// Mutations require a valid token.
	mux.Handle("POST /api/v1/assets/upload",
		s.auth.Require(http.HandlerFunc(s.handleUpload)))
	mux.Handle("DELETE /api/v1/assets/{entityType}/{entityId}",
		s.auth.Require(http.HandlerFunc(s.handleDelete)))
	mux.Handle("POST /api/v1/assets/verify/{entityType}/{entityId}",
		s.auth.Require(http.HandlerFunc(s.handleVerify)))

	return metrics.Middleware(logging.Middleware(mux))
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.healthCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.healthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "backend": s.backend.Type()})
}

// ─── Upload ─────────────────────────────────────────────────────────────────

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entityType := q.Get("entityType")
	entityID := q.Get("entityId")
	assetType := model.AssetType(q.Get("assetType"))
	if entityType == "" || entityID == "" {
		s.sendError(w, assets.ValidationError("missing_parameter", "entityType and entityId are required"))
		return
	}

	// 1 MiB of slack over the payload ceiling for multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.sendError(w, assets.ValidationError("file_too_large",
				fmt.Sprintf("request exceeds upload limit %d", s.config.MaxUploadSize)))
			return
		}
		s.sendError(w, assets.ValidationError("invalid_multipart", "malformed multipart body"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.sendError(w, assets.ValidationError("missing_file", `multipart field "file" is required`))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.sendError(w, assets.ValidationError("unreadable_file", "could not read uploaded file"))
		return
	}

	claims := auth.GetClaims(r.Context())
	actor := assets.Actor{UserID: claims.UserID, IsSystem: claims.IsSystem}

	target := assets.Target{EntityType: entityType, EntityID: entityID, AssetType: assetType}
	candidate := assets.Candidate{
		Filename:    header.Filename,
		Size:        int64(len(data)),
		ContentType: header.Header.Get("Content-Type"),
	}

	vr := s.validator.Validate(r.Context(), target, candidate, actor)
	if !vr.Valid {
		s.sendError(w, vr.Err)
		return
	}

	result, err := s.uploader.Upload(r.Context(), vr.Entity, assetType, header.Filename, data, actor)
	if err != nil {
		s.sendError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(struct {
		*assets.UploadResult
		Warnings []string `json:"warnings,omitempty"`
	}{result, vr.Warnings})
}

// ─── Download ───────────────────────────────────────────────────────────────

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	entityType := r.PathValue("entityType")
	entityID := r.PathValue("entityId")

	entity, err := s.metadata.GetEntity(r.Context(), entityType, entityID)
	if err != nil {
		s.sendError(w, err)
		return
	}

	level, err := s.resolver.Resolve(r.Context(), viewerFromContext(r.Context()), entity)
	if err != nil {
		s.sendError(w, assets.MetadataError("entitlement_failed", "entitlement lookup failed").Wrap(err))
		return
	}
	if level == entitlement.Denied {
		s.sendError(w, assets.AccessDeniedError("no entitlement to this content"))
		return
	}

	switch {
	case entity.HasDeclaredDocument():
		s.serveDocument(w, r, entity, level)
	case entity.HasDeclaredVideo():
		s.serveVideo(w, r, entity)
	default:
		s.sendError(w, assets.NotFoundError("no_asset", "entity has no downloadable asset"))
	}
}

// serveDocument delivers the entity's document, running the PDF transform
// pipeline when the stored file is a PDF.
func (s *Server) serveDocument(w http.ResponseWriter, r *http.Request, entity *model.Entity, level entitlement.Level) {
	filename := *entity.DeclaredFilename
	key := s.keys.Resolve(entity.Type, entity.ID, model.AssetDocument, filename)

	reader, size, err := s.backend.GetObject(r.Context(), key, 0, 0)
	if err != nil && errors.Is(err, storage.ErrNotFound) && s.config.LegacyKeyFallback {
		legacyKey := s.keys.ResolveLegacy(entity.Type, entity.ID, filename)
		reader, size, err = s.backend.GetObject(r.Context(), legacyKey, 0, 0)
		if err == nil {
			logging.Debug("document served from legacy key",
				zap.String("entity_id", entity.ID), zap.String("key", legacyKey))
		}
	}
	if err != nil {
		metrics.RecordDownload(string(model.AssetDocument), 0, false)
		if errors.Is(err, storage.ErrNotFound) {
			metrics.RecordOrphanDetected("confirmed")
			logging.Error("document declared in metadata but missing from storage",
				zap.String("entity_type", entity.Type),
				zap.String("entity_id", entity.ID),
				zap.String("key", key))
			s.sendError(w, assets.NotFoundError("object_not_found", "stored document is missing"))
			return
		}
		s.sendError(w, assets.StorageError("read_failed", "object read failed").Wrap(err))
		return
	}
	defer reader.Close()

	if !isPDF(filename) {
		ct := mime.TypeByExtension(filepath.Ext(filename))
		if ct == "" {
			ct = "application/octet-stream"
		}
		disposition := transform.DispositionAttachment
		if level == entitlement.PreviewOnly {
			disposition = transform.DispositionInline
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("Content-Disposition", contentDisposition(disposition, filename))
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		n, err := io.Copy(w, reader)
		metrics.RecordDownload(string(model.AssetDocument), n, err == nil)
		return
	}

	pdf, err := io.ReadAll(reader)
	if err != nil {
		metrics.RecordDownload(string(model.AssetDocument), 0, false)
		s.sendError(w, assets.StorageError("read_failed", "object stream failed").Wrap(err))
		return
	}

	opts := transform.Options{SkipFooter: r.URL.Query().Get("skipFooter") == "true"}
	out, decision := s.pipeline.Apply(pdf, entity, level, opts)

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", contentDisposition(decision.Disposition, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	n, err := w.Write(out)
	metrics.RecordDownload(string(model.AssetDocument), int64(n), err == nil)
}

// serveVideo streams the entity's video with Range support. Videos are never
// transformed; the player needs byte-exact partial content.
func (s *Server) serveVideo(w http.ResponseWriter, r *http.Request, entity *model.Entity) {
	key := s.keys.Resolve(entity.Type, entity.ID, model.AssetVideo, "")

	info, err := s.backend.StatObject(r.Context(), key)
	if err != nil {
		metrics.RecordDownload(string(model.AssetVideo), 0, false)
		if errors.Is(err, storage.ErrNotFound) {
			metrics.RecordOrphanDetected("confirmed")
			logging.Error("video declared in metadata but missing from storage",
				zap.String("entity_type", entity.Type),
				zap.String("entity_id", entity.ID),
				zap.String("key", key))
			s.sendError(w, assets.NotFoundError("object_not_found", "stored video is missing"))
			return
		}
		s.sendError(w, assets.StorageError("stat_failed", "object probe failed").Wrap(err))
		return
	}

	offset, length, hasRange, satisfiable := parseRangeHeader(r.Header.Get("Range"), info.Size)
	if !satisfiable {
		metrics.RecordDownload(string(model.AssetVideo), 0, false)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", info.Size))
		s.writeError(w, http.StatusRequestedRangeNotSatisfiable, errorResponse{
			Error: "range_not_satisfiable", Message: "requested range is outside the stored object"})
		return
	}

	reader, _, err := s.backend.GetObject(r.Context(), key, offset, length)
	if err != nil {
		metrics.RecordDownload(string(model.AssetVideo), 0, false)
		s.sendError(w, assets.StorageError("read_failed", "object read failed").Wrap(err))
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Disposition", contentDisposition(transform.DispositionInline, model.AssetVideo.CanonicalFilename()))
	if hasRange {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, info.Size))
		w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}

	n, err := io.Copy(w, reader)
	if err != nil {
		logging.Warn("video transfer error", zap.String("key", key), zap.Error(err))
	}
	metrics.RecordDownload(string(model.AssetVideo), n, err == nil)
}

// ─── Image ──────────────────────────────────────────────────────────────────

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	entityType := r.PathValue("entityType")
	entityID := r.PathValue("entityId")

	entity, err := s.metadata.GetEntity(r.Context(), entityType, entityID)
	if err != nil {
		s.sendError(w, err)
		return
	}

	decision, err := s.reconciler.ShouldServe(r.Context(), entity)
	if err != nil {
		s.sendError(w, err)
		return
	}
	if !decision.Serve {
		metrics.RecordDownload(string(model.AssetImage), 0, false)
		s.sendError(w, assets.NotFoundError("image_not_found", "entity has no image"))
		return
	}

	// The trailing path segment is cosmetic; storage always uses the
	// canonical key.
	key := s.keys.Resolve(entity.Type, entity.ID, model.AssetImage, "")
	reader, size, err := s.backend.GetObject(r.Context(), key, 0, 0)
	if err != nil {
		metrics.RecordDownload(string(model.AssetImage), 0, false)
		if errors.Is(err, storage.ErrNotFound) {
			s.sendError(w, assets.NotFoundError("image_not_found", "entity has no image"))
			return
		}
		s.sendError(w, assets.StorageError("read_failed", "object read failed").Wrap(err))
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	n, err := io.Copy(w, reader)
	metrics.RecordDownload(string(model.AssetImage), n, err == nil)
}

// ─── Delete ─────────────────────────────────────────────────────────────────

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	entityType := r.PathValue("entityType")
	entityID := r.PathValue("entityId")
	assetType := model.AssetType(r.URL.Query().Get("assetType"))
	if !assetType.Valid() {
		s.sendError(w, assets.ValidationError("unknown_asset_type",
			fmt.Sprintf("unknown asset type %q", assetType)))
		return
	}

	entity, err := s.metadata.GetEntity(r.Context(), entityType, entityID)
	if err != nil {
		s.sendError(w, err)
		return
	}

	claims := auth.GetClaims(r.Context())
	if !claims.IsSystem && claims.UserID != entity.OwnerID {
		s.sendError(w, assets.AccessDeniedError("only the entity owner or the system may delete assets"))
		return
	}

	result, err := s.deleter.Delete(r.Context(), entity, assetType)
	if err != nil {
		s.sendError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// ─── Verify ─────────────────────────────────────────────────────────────────

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	entityType := r.PathValue("entityType")
	entityID := r.PathValue("entityId")
	assetType := model.AssetType(r.URL.Query().Get("assetType"))
	if !assetType.Valid() {
		s.sendError(w, assets.ValidationError("unknown_asset_type",
			fmt.Sprintf("unknown asset type %q", assetType)))
		return
	}

	entity, err := s.metadata.GetEntity(r.Context(), entityType, entityID)
	if err != nil {
		s.sendError(w, err)
		return
	}

	claims := auth.GetClaims(r.Context())
	if !claims.IsSystem && claims.UserID != entity.OwnerID {
		s.sendError(w, assets.AccessDeniedError("only the entity owner or the system may verify assets"))
		return
	}

	if !entity.HasDeclaredAsset(assetType) {
		s.sendError(w, assets.NotFoundError("asset_not_found",
			fmt.Sprintf("entity declares no %s asset", assetType)))
		return
	}

	var req struct {
		ExpectedSHA256 string `json:"expectedSha256"`
	}
	if r.Body != nil {
		// An empty or absent body just means "report the stored checksum".
		json.NewDecoder(r.Body).Decode(&req)
	}

	filename := ""
	if entity.DeclaredFilename != nil {
		filename = *entity.DeclaredFilename
	}
	key := s.keys.Resolve(entity.Type, entity.ID, assetType, filename)

	result, err := s.verifier.Verify(r.Context(), key, strings.ToLower(req.ExpectedSHA256))
	if err != nil {
		s.sendError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func viewerFromContext(ctx context.Context) *entitlement.Viewer {
	claims := auth.GetClaims(ctx)
	if claims == nil {
		return nil
	}
	return &entitlement.Viewer{UserID: claims.UserID, IsSystem: claims.IsSystem}
}

func isPDF(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

func parseRangeHeader(rangeHeader string, totalSize int64) (offset, length int64, hasRange, satisfiable bool) {
	if rangeHeader == "" {
		return 0, totalSize, false, true
	}

	matches := rangeRegex.FindStringSubmatch(rangeHeader)
	if matches == nil {
		return 0, totalSize, false, true
	}

	startStr, endStr := matches[1], matches[2]

	if startStr == "" && endStr != "" {
		suffix, _ := strconv.ParseInt(endStr, 10, 64)
		offset = totalSize - suffix
		if offset < 0 {
			offset = 0
		}
		length = totalSize - offset
	} else {
		if startStr != "" {
			offset, _ = strconv.ParseInt(startStr, 10, 64)
		}
		if endStr != "" {
			end, _ := strconv.ParseInt(endStr, 10, 64)
			length = end - offset + 1
		} else {
			length = totalSize - offset
		}
	}

	if offset >= totalSize {
		return 0, 0, true, false
	}
	if offset+length > totalSize {
		length = totalSize - offset
	}
	if length <= 0 {
		return 0, 0, true, false
	}

	return offset, length, true, true
}

// errorResponse is the JSON error body.
type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// sendError maps engine errors to HTTP statuses and writes the JSON body.
func (s *Server) sendError(w http.ResponseWriter, err error) {
	e := assets.AsError(err)
	if e == nil {
		logging.Error("unclassified error", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, errorResponse{
			Error: "internal_error", Message: "internal server error"})
		return
	}

	status := http.StatusInternalServerError
	switch e.Kind {
	case assets.KindValidation:
		status = http.StatusBadRequest
		if e.Code == "file_too_large" {
			status = http.StatusRequestEntityTooLarge
		}
	case assets.KindNotFound, assets.KindConsistency:
		status = http.StatusNotFound
	case assets.KindAccessDenied:
		status = http.StatusForbidden
	case assets.KindStorage:
		status = http.StatusBadGateway
	case assets.KindMetadata:
		status = http.StatusInternalServerError
	}

	if status >= 500 {
		logging.Error("request failed", zap.String("code", e.Code), zap.Error(e))
	}
	s.writeError(w, status, errorResponse{Error: e.Code, Message: e.Message, Details: e.Details})
}

func (s *Server) writeError(w http.ResponseWriter, status int, body errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
