package cases

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"go.uber.org/zap"

	"github.com/aldoetobex/legal-mp-engagement/internal/auth"
	"github.com/aldoetobex/legal-mp-engagement/internal/filetoken"
	"github.com/aldoetobex/legal-mp-engagement/internal/policy"
	"github.com/aldoetobex/legal-mp-engagement/internal/storage"
	"github.com/aldoetobex/legal-mp-engagement/internal/store"
	"github.com/aldoetobex/legal-mp-engagement/pkg/apperr"
	"github.com/aldoetobex/legal-mp-engagement/pkg/models"
)

const (
	MaxFiles    = 10
	MaxFileSize = 10 << 20

	// SecurePath is where tokenized downloads are served.
	SecurePath = "/api/files/secure/"

	sniffLen = 512
)

var allowedMime = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
}

// Files stores case documents and hands them out through capability tokens.
type Files struct {
	st     store.Store
	blobs  storage.Storage
	signer *filetoken.Signer
	log    *zap.Logger
}

func NewFiles(st store.Store, blobs storage.Storage, signer *filetoken.Signer, log *zap.Logger) *Files {
	return &Files{st: st, blobs: blobs, signer: signer, log: log}
}

// OwnedCase loads the case and checks the client may attach files to it.
func (f *Files) OwnedCase(ctx context.Context, caseID uuid.UUID, client policy.Actor) (*models.Case, error) {
	cs, err := f.st.GetCase(ctx, caseID)
	if err != nil {
		return nil, notFound(err, "case not found")
	}
	if !policy.CanMutateCase(cs, client) {
		return nil, apperr.Forbidden("access denied")
	}
	return cs, nil
}

// Attach sniffs the content, stores the blob and records it on the case.
// The case must come from OwnedCase.
func (f *Files) Attach(ctx context.Context, cs *models.Case, name string, size int64, r io.Reader) (*models.CaseFile, error) {
	if size <= 0 {
		return nil, apperr.Invalid("empty file")
	}
	if size > MaxFileSize {
		return nil, apperr.Invalid("max 10MB per file")
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown || !allowedMime[kind.MIME.Value] {
		return nil, apperr.Invalid("only PDF, PNG or JPEG are allowed")
	}

	key := storage.MakeObjectKey(cs.ID, name)
	body := io.MultiReader(bytes.NewReader(head[:n]), r)
	if err := f.blobs.Put(ctx, key, body, kind.MIME.Value, size); err != nil {
		return nil, err
	}

	rec := &models.CaseFile{
		CaseID:       cs.ID,
		Key:          key,
		Mime:         kind.MIME.Value,
		Size:         size,
		OriginalName: name,
	}
	if err := f.st.CreateFile(ctx, rec); err != nil {
		if derr := f.blobs.Delete(ctx, key); derr != nil {
			f.log.Warn("orphaned blob", zap.String("key", key), zap.Error(derr))
		}
		return nil, err
	}
	return rec, nil
}

// Authorize returns the file when the actor may download it.
func (f *Files) Authorize(ctx context.Context, fileID uuid.UUID, actor policy.Actor) (*models.CaseFile, error) {
	cf, err := f.st.GetFile(ctx, fileID)
	if err != nil {
		return nil, notFound(err, "file not found")
	}
	cs, err := f.st.GetCase(ctx, cf.CaseID)
	if err != nil {
		return nil, notFound(err, "file not found")
	}
	if !policy.CanAccessFile(cf, cs, actor) {
		return nil, apperr.Forbidden("access denied")
	}
	return cf, nil
}

// Issue authorizes the actor and signs a download token for the file.
func (f *Files) Issue(ctx context.Context, fileID uuid.UUID, actor policy.Actor) (token string, expiresAt int64, err error) {
	cf, err := f.Authorize(ctx, fileID, actor)
	if err != nil {
		return "", 0, err
	}
	token, expiresAt = f.signer.Issue(cf.ID.String(), actor.ID.String())
	return token, expiresAt, nil
}

// Open checks the token and opens the blob. The caller closes the stream.
func (f *Files) Open(ctx context.Context, fileID, token string) (*models.CaseFile, io.ReadCloser, error) {
	if token == "" || !f.signer.Validate(token, fileID, filetoken.Subject(token)) {
		return nil, nil, apperr.Forbidden("invalid or expired token")
	}
	id, err := uuid.Parse(fileID)
	if err != nil {
		return nil, nil, apperr.NotFound("file not found")
	}
	cf, err := f.st.GetFile(ctx, id)
	if err != nil {
		return nil, nil, notFound(err, "file not found")
	}
	rc, err := f.blobs.Open(ctx, cf.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, apperr.NotFound("file not found")
		}
		return nil, nil, err
	}
	return cf, rc, nil
}

/* =============================== Handlers =============================== */

// FileHandler serves upload, secure-url and secure download.
type FileHandler struct {
	files *Files
}

func NewFileHandler(files *Files) *FileHandler { return &FileHandler{files: files} }

// Upload Case Files godoc
// @Summary      Upload multiple case files (PDF/PNG/JPEG)
// @Description  Client (owner) uploads up to 10 files
// @Tags         files
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id     path      string   true  "case id (uuid)"
// @Param        files  formData  []file   true  "PDF/PNG/JPEG (max 10)"
// @Success      201    {object}  map[string]any  "results: id, name, size, error"
// @Failure      400    {object}  models.ErrorResponse
// @Failure      403    {object}  models.ErrorResponse
// @Failure      404    {object}  models.ErrorResponse
// @Router       /cases/{id}/files [post]
func (h *FileHandler) Upload(c *fiber.Ctx) error {
	caseID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid case id")
	}
	cs, err := h.files.OwnedCase(c.UserContext(), caseID, auth.Actor(c))
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart form required; use files")
	}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["files[]"]
	}
	if len(files) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "files are required (use key: files)")
	}
	if len(files) > MaxFiles {
		return fiber.NewError(fiber.StatusBadRequest, "max 10 files allowed")
	}

	results := make([]fiber.Map, 0, len(files))
	for _, fh := range files {
		res := fiber.Map{"name": fh.Filename, "size": fh.Size}

		src, err := fh.Open()
		if err != nil {
			res["error"] = "open failed"
			results = append(results, res)
			continue
		}
		rec, err := h.files.Attach(c.UserContext(), cs, fh.Filename, fh.Size, src)
		_ = src.Close()
		if err != nil {
			if msg := apperr.Message(err); msg != "" {
				res["error"] = msg
			} else {
				res["error"] = "upload failed"
			}
			results = append(results, res)
			continue
		}

		res["id"] = rec.ID
		res["mime"] = rec.Mime
		results = append(results, res)
	}

	// 201 even when some files failed; each item carries its own "error"
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"results": results})
}

// SecureURLResponse is returned by GET /files/:fileId/secure-url.
type SecureURLResponse struct {
	URL       string `json:"url"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Secure Download URL godoc
// @Summary      Get secure download URL
// @Description  Client owner or the accepted lawyer obtains a short-lived tokenized URL
// @Tags         files
// @Security     BearerAuth
// @Produce      json
// @Param        fileId  path string true "file id (uuid)"
// @Success      200  {object}  SecureURLResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /files/{fileId}/secure-url [get]
func (h *FileHandler) SecureURL(c *fiber.Ctx) error {
	fileID, err := uuid.Parse(c.Params("fileId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid file id")
	}
	token, exp, err := h.files.Issue(c.UserContext(), fileID, auth.Actor(c))
	if err != nil {
		return err
	}
	return c.JSON(SecureURLResponse{
		URL:       c.BaseURL() + SecurePath + fileID.String() + "?token=" + url.QueryEscape(token),
		Token:     token,
		ExpiresAt: exp,
	})
}

// Secure Download godoc
// @Summary      Download a case file
// @Description  No bearer auth; the token query parameter carries the authorization
// @Tags         files
// @Produce      octet-stream
// @Param        fileId  path   string true "file id (uuid)"
// @Param        token   query  string true "download token"
// @Success      200
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /files/secure/{fileId} [get]
func (h *FileHandler) Download(c *fiber.Ctx) error {
	cf, rc, err := h.files.Open(c.UserContext(), c.Params("fileId"), c.Query("token"))
	if err != nil {
		return err
	}

	c.Attachment(cf.OriginalName)
	ct := cf.Mime
	if ct == "" {
		ct = fiber.MIMEOctetStream
	}
	c.Set(fiber.HeaderContentType, ct)

	// fasthttp closes rc once the body is written or the response is released.
	return c.SendStream(rc)
}
