package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/intranet-events/backend/internal/middleware"
	"github.com/intranet-events/backend/internal/models"
	"github.com/intranet-events/backend/pkg/response"
)

// MaxImageSize bounds an uploaded event image.
const MaxImageSize = 5 << 20

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// EventRequest is the body of POST /events and PATCH /events/:id. Omitted
// fields are left unchanged on update.
type EventRequest struct {
	Title             *string              `json:"title"`
	Description       *string              `json:"description"`
	Location          *string              `json:"location"`
	StartTime         *string              `json:"start_time"`
	EndTime           *string              `json:"end_time"`
	RegistrationStart *string              `json:"registration_start"`
	RegistrationEnd   *string              `json:"registration_end"`
	ClearRegistration bool                 `json:"clear_registration"`
	NeedsHelpers      *bool                `json:"needs_helpers"`
	AllowedRoles      *[]string            `json:"allowed_roles"`
	IsExternal        *bool                `json:"is_external"`
	HelperTypes       *[]HelperTypeRequest `json:"helper_types"`
}

// HelperTypeRequest is one helper type in an EventRequest.
type HelperTypeRequest struct {
	ID          int64         `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Slots       []SlotRequest `json:"slots"`
}

// SlotRequest is one slot in a HelperTypeRequest.
type SlotRequest struct {
	ID             int64  `json:"id"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	QuantityNeeded int    `json:"quantity_needed"`
}

// Handler serves the event endpoints.
type Handler struct {
	svc    *Service
	loc    *time.Location
	logger *zap.Logger
}

// NewHandler creates an event handler. Times without an offset are read in loc.
func NewHandler(svc *Service, loc *time.Location, logger *zap.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, loc: loc, logger: logger}
}

var timeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

func (h *Handler) parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, h.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

func (h *Handler) parseOptTime(s *string, field string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := h.parseTime(*s)
	if err != nil {
		return nil, invalid(field, "%v", err)
	}
	return &t, nil
}

// toInput converts the wire request into an EventInput.
func (h *Handler) toInput(req *EventRequest) (EventInput, error) {
	in := EventInput{
		Title:             req.Title,
		Description:       req.Description,
		Location:          req.Location,
		ClearRegistration: req.ClearRegistration,
		NeedsHelpers:      req.NeedsHelpers,
		IsExternal:        req.IsExternal,
	}
	var err error
	if in.StartTime, err = h.parseOptTime(req.StartTime, "start_time"); err != nil {
		return in, err
	}
	if in.EndTime, err = h.parseOptTime(req.EndTime, "end_time"); err != nil {
		return in, err
	}
	if in.RegistrationStart, err = h.parseOptTime(req.RegistrationStart, "registration_start"); err != nil {
		return in, err
	}
	if in.RegistrationEnd, err = h.parseOptTime(req.RegistrationEnd, "registration_end"); err != nil {
		return in, err
	}
	if req.AllowedRoles != nil {
		roles := make([]models.Role, 0, len(*req.AllowedRoles))
		for _, r := range *req.AllowedRoles {
			roles = append(roles, models.Role(strings.ToLower(strings.TrimSpace(r))))
		}
		in.AllowedRoles = &roles
	}
	if req.HelperTypes != nil {
		types := make([]HelperTypeInput, 0, len(*req.HelperTypes))
		for _, ht := range *req.HelperTypes {
			t := HelperTypeInput{ID: ht.ID, Title: ht.Title, Description: ht.Description}
			for _, sl := range ht.Slots {
				start, err := h.parseTime(sl.StartTime)
				if err != nil {
					return in, invalid("slots", "start_time: %v", err)
				}
				end, err := h.parseTime(sl.EndTime)
				if err != nil {
					return in, invalid("slots", "end_time: %v", err)
				}
				t.Slots = append(t.Slots, SlotInput{ID: sl.ID, StartTime: start, EndTime: end, QuantityNeeded: sl.QuantityNeeded})
			}
			types = append(types, t)
		}
		in.HelperTypes = &types
	}
	return in, nil
}

// readRequest accepts either a JSON body or a multipart form with the JSON
// in the "event" field and an optional "image" file. The returned cleanup
// must be called once the upload has been consumed.
func (h *Handler) readRequest(c *gin.Context) (EventInput, *Upload, func(), error) {
	noop := func() {}
	var req EventRequest
	var file *multipart.FileHeader

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		raw := c.PostForm("event")
		if raw == "" {
			return EventInput{}, nil, noop, invalid("event", "form field is required")
		}
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return EventInput{}, nil, noop, invalid("event", "malformed JSON: %v", err)
		}
		if fh, err := c.FormFile("image"); err == nil {
			file = fh
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		return EventInput{}, nil, noop, invalid("body", "malformed JSON: %v", err)
	}

	in, err := h.toInput(&req)
	if err != nil || file == nil {
		return in, nil, noop, err
	}
	if file.Size > MaxImageSize {
		return in, nil, noop, invalid("image", "exceeds %d bytes", MaxImageSize)
	}
	ct := file.Header.Get("Content-Type")
	if !imageTypes[ct] {
		return in, nil, noop, invalid("image", "unsupported content type %q", ct)
	}
	rc, err := file.Open()
	if err != nil {
		return in, nil, noop, invalid("image", "unreadable upload")
	}
	up := &Upload{Filename: file.Filename, ContentType: ct, Size: file.Size, Body: rc}
	return in, up, func() { rc.Close() }, nil
}

func eventID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid event id")
		return 0, false
	}
	return id, true
}

// fail maps service errors onto HTTP responses.
func (h *Handler) fail(c *gin.Context, err error) {
	var verr *ValidationError
	var lerr *LockedError
	switch {
	case errors.As(err, &verr):
		response.Fail(c, http.StatusBadRequest, verr.Error(), gin.H{"field": verr.Field})
	case errors.As(err, &lerr):
		response.Conflict(c, lerr.Error(), gin.H{"holder": lerr.Holder, "acquired_at": lerr.AcquiredAt})
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "event not found")
	default:
		h.logger.Error("event request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Internal(c, "internal error")
	}
}

// List handles GET /events.
// Query: status (comma separated), from, to, external, include_helpers.
func (h *Handler) List(c *gin.Context) {
	var f ListFilter
	if s := c.Query("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			st, ok := models.ParseEventStatus(strings.TrimSpace(part))
			if !ok {
				response.BadRequest(c, "invalid status "+part)
				return
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	for key, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if s := c.Query(key); s != "" {
			t, err := h.parseDay(s)
			if err != nil {
				response.BadRequest(c, "invalid "+key)
				return
			}
			*dst = &t
		}
	}
	if f.To != nil && len(c.Query("to")) == len("2006-01-02") {
		end := f.To.AddDate(0, 0, 1)
		f.To = &end
	}
	if s := c.Query("external"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			response.BadRequest(c, "invalid external")
			return
		}
		f.External = &b
	}
	f.IncludeHelpers = c.Query("include_helpers") == "1" || c.Query("include_helpers") == "true"

	list, err := h.svc.List(c.Request.Context(), f, middleware.CurrentIdentity(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// parseDay accepts a plain date (start of day in the handler location) or
// a full timestamp.
func (h *Handler) parseDay(s string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", s, h.loc); err == nil {
		return t, nil
	}
	return h.parseTime(s)
}

// Get handles GET /events/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	e, err := h.svc.Get(c.Request.Context(), id, middleware.CurrentIdentity(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, e)
}

// Create handles POST /events (organizers only).
func (h *Handler) Create(c *gin.Context) {
	in, img, done, err := h.readRequest(c)
	defer done()
	if err != nil {
		h.fail(c, err)
		return
	}
	who := middleware.CurrentIdentity(c)
	id, err := h.svc.Create(c.Request.Context(), in, who, img)
	if err != nil {
		h.fail(c, err)
		return
	}
	e, err := h.svc.Get(c.Request.Context(), id, who)
	if err != nil {
		response.Created(c, gin.H{"id": id})
		return
	}
	response.Created(c, e)
}

// Update handles PATCH /events/:id (organizers only).
func (h *Handler) Update(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	in, img, done, err := h.readRequest(c)
	defer done()
	if err != nil {
		h.fail(c, err)
		return
	}
	who := middleware.CurrentIdentity(c)
	if err := h.svc.Update(c.Request.Context(), id, in, who, img); err != nil {
		h.fail(c, err)
		return
	}
	e, err := h.svc.Get(c.Request.Context(), id, who)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, e)
}

// Delete handles DELETE /events/:id (organizers only).
func (h *Handler) Delete(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id, middleware.CurrentIdentity(c)); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

// GetLock handles GET /events/:id/lock.
func (h *Handler) GetLock(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	st, err := h.svc.CheckLock(c.Request.Context(), id, middleware.CurrentIdentity(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, st)
}

// AcquireLock handles POST /events/:id/lock. A denial answers 409 with the
// current holder.
func (h *Handler) AcquireLock(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	res, err := h.svc.AcquireLock(c.Request.Context(), id, middleware.CurrentIdentity(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !res.Granted {
		response.Conflict(c, ErrLocked.Error(), res)
		return
	}
	response.OK(c, res)
}

// ReleaseLock handles DELETE /events/:id/lock.
func (h *Handler) ReleaseLock(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	res, err := h.svc.ReleaseLock(c.Request.Context(), id, middleware.CurrentIdentity(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !res.Granted {
		response.Conflict(c, ErrLocked.Error(), res)
		return
	}
	response.OK(c, res)
}

// History handles GET /events/:id/history?limit=.
func (h *Handler) History(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	list, err := h.svc.History(c.Request.Context(), id, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}
