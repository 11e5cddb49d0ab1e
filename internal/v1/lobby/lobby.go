// Package lobby is the HTML front door: the join form, the room creation
// form, and the room page that bootstraps the player. It is the only place
// identity cookies are minted; the websocket hub only ever verifies them.
package lobby

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tmtu/watchroom/internal/v1/directory"
	"github.com/tmtu/watchroom/internal/v1/identity"
	"github.com/tmtu/watchroom/internal/v1/logging"
	"github.com/tmtu/watchroom/internal/v1/media"
	"github.com/tmtu/watchroom/internal/v1/metrics"
	"github.com/tmtu/watchroom/internal/v1/protocol"
	"github.com/tmtu/watchroom/internal/v1/registry"
	"github.com/tmtu/watchroom/internal/v1/room"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 5
	// codeAttempts bounds collision retries on generated codes. With 36^5
	// codes even a second attempt is rare.
	codeAttempts = 16

	maxNicknameLen = 32
	maxRoomNameLen = 64
	maxCodeLen     = 12
)

// RoomFactory creates and starts a room for a join code. main wires it so
// the lobby does not carry the server context or ping cadence itself.
type RoomFactory func(code string, stream *media.Stream) *room.Room

// Handler serves the lobby pages.
type Handler struct {
	registry  *registry.Registry
	library   *media.Library
	issuer    *identity.Issuer
	directory *directory.Service
	newRoom   RoomFactory
	dev       bool
}

// NewHandler wires the lobby. dir may be nil in single-instance mode; dev
// relaxes the Secure flag on issued cookies so plain-http checkouts work.
func NewHandler(reg *registry.Registry, lib *media.Library, issuer *identity.Issuer, dir *directory.Service, factory RoomFactory, dev bool) *Handler {
	return &Handler{
		registry:  reg,
		library:   lib,
		issuer:    issuer,
		directory: dir,
		newRoom:   factory,
		dev:       dev,
	}
}

type joinForm struct {
	Nickname string `form:"nickname" binding:"required"`
	Avatar   uint32 `form:"avatar"`
	Room     string `form:"room" binding:"required"`
}

type createForm struct {
	Name string `form:"name" binding:"required"`
	Slug string `form:"slug" binding:"required"`
	Code string `form:"code"`
}

// Index renders the join form and the list of open rooms.
func (h *Handler) Index(c *gin.Context) {
	h.render(c, http.StatusOK, "index.html.tmpl", indexPage{
		Avatars: avatarOptions(),
		Rooms:   h.openRooms(c),
		Prefill: normalizeCode(c.Query("room")),
	})
}

// Join checks the room code, leaves the identity cookie the websocket hub
// will verify, and renders the player page. Every user error lands back on
// the index with the retry banner; the form is too small to deserve more.
func (h *Handler) Join(c *gin.Context) {
	var form joinForm
	if err := c.ShouldBind(&form); err != nil {
		c.Redirect(http.StatusFound, "/#retry")
		return
	}

	nickname := strings.TrimSpace(form.Nickname)
	if nickname == "" || len(nickname) > maxNicknameLen {
		c.Redirect(http.StatusFound, "/#retry")
		return
	}

	code := normalizeCode(form.Room)
	rm, ok := h.registry.Find(code)
	if !ok {
		c.Redirect(http.StatusFound, "/#retry")
		return
	}

	meta, err := rm.Meta(c.Request.Context())
	if err != nil {
		// Shut down between Find and Meta; same answer as not found.
		c.Redirect(http.StatusFound, "/#retry")
		return
	}

	if err := h.ensureIdentity(c, nickname+"-"+code); err != nil {
		logging.Error(c.Request.Context(), "Failed to issue identity", zap.Error(err))
		c.String(http.StatusInternalServerError, "could not issue identity")
		return
	}

	h.render(c, http.StatusOK, "room.html.tmpl",
		roomPageData(code, nickname, protocol.BadgeID(form.Avatar), meta))
}

// CreatePage renders the room creation form with the stream catalog.
func (h *Handler) CreatePage(c *gin.Context) {
	h.render(c, http.StatusOK, "create.html.tmpl", createPage{Streams: h.library.List()})
}

// Create opens a room playing one of the library streams, under an explicit
// join code if the form carried one and a generated code otherwise. The new
// room outlives the request; its lifecycle belongs to the registry from the
// moment the install succeeds.
func (h *Handler) Create(c *gin.Context) {
	var form createForm
	if err := c.ShouldBind(&form); err != nil {
		c.Redirect(http.StatusFound, "/create#retry")
		return
	}

	name := strings.TrimSpace(form.Name)
	if name == "" || len(name) > maxRoomNameLen {
		c.Redirect(http.StatusFound, "/create#retry")
		return
	}

	source, ok := h.library.Get(form.Slug)
	if !ok {
		c.Redirect(http.StatusFound, "/create#retry")
		return
	}

	code := normalizeCode(form.Code)
	if code == "" {
		picked, err := h.pickCode()
		if err != nil {
			logging.Error(c.Request.Context(), "Failed to pick a room code", zap.Error(err))
			c.String(http.StatusServiceUnavailable, "could not allocate a room code")
			return
		}
		code = picked
	} else if !validCode(code) {
		c.Redirect(http.StatusFound, "/create#retry")
		return
	}

	// The room shows the creator's name, not the catalog's.
	stream := *source
	stream.Name = name

	rm := h.newRoom(code, &stream)
	if !h.registry.RegisterIfAbsent(code, rm) {
		_ = rm.Shutdown(c.Request.Context())
		c.Redirect(http.StatusFound, "/create#retry")
		return
	}

	metrics.RoomsCreated.Inc()
	logging.Info(c.Request.Context(), "Room opened",
		zap.String("code", code),
		zap.String("name", name),
		zap.String("slug", stream.Slug))

	if err := h.directory.Save(c.Request.Context(), directory.Entry{
		Code:      code,
		Name:      name,
		Slug:      stream.Slug,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		logging.Warn(c.Request.Context(), "Failed to persist room entry", zap.Error(err))
	}
	if err := h.directory.Publish(c.Request.Context(), directory.Opened(code, name)); err != nil {
		logging.Warn(c.Request.Context(), "Failed to publish room event", zap.Error(err))
	}

	c.Redirect(http.StatusFound, "/")
}

// openRooms snapshots every live room for the index listing. Rooms that
// close between the snapshot and the Meta call just drop off the list.
func (h *Handler) openRooms(c *gin.Context) []roomRow {
	var rows []roomRow
	for _, code := range h.registry.Codes() {
		rm, ok := h.registry.Find(code)
		if !ok {
			continue
		}
		meta, err := rm.Meta(c.Request.Context())
		if err != nil {
			continue
		}
		name := code
		if meta.Stream != nil {
			name = meta.Stream.Name
		}
		rows = append(rows, roomRow{Code: code, Name: name, Viewers: meta.Viewers})
	}
	return rows
}

// ensureIdentity leaves a cookie for subject on the response, reusing a
// still-valid cookie that already names the same subject.
func (h *Handler) ensureIdentity(c *gin.Context, subject string) error {
	if existing, err := c.Cookie(identity.CookieName); err == nil {
		if got, err := h.issuer.Verify(existing); err == nil && got == subject {
			logging.Debug(c.Request.Context(), "Reusing identity cookie",
				zap.String("subject", subject))
			return nil
		}
	}

	token, err := h.issuer.Issue(subject)
	if err != nil {
		return err
	}

	logging.Info(c.Request.Context(), "Issued identity cookie",
		zap.String("subject", subject))
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(identity.CookieName, token,
		int(identity.DefaultTTL.Seconds()), "/", "", !h.dev, true)
	return nil
}

// roomPageData projects a room's meta onto the player page. Join order
// decides medals and nobody holds a user id until the Hello lands, so the
// badge preview shows only what the name alone earns.
func roomPageData(code, nickname string, avatar protocol.BadgeID, meta room.Meta) roomPage {
	badges := []protocol.BadgeID{}
	if nickname == protocol.RosetteName {
		badges = append(badges, protocol.BadgeRosette)
		avatar = protocol.BadgeUserGray
	}

	page := roomPage{
		Code:       code,
		Nickname:   nickname,
		Avatar:     avatar,
		Badges:     badges,
		BadgeData:  badgeData(),
		StreamName: code,
		Viewers:    meta.Viewers,
	}
	if meta.Stream != nil {
		page.StreamName = meta.Stream.Name
		page.StreamTitle = meta.Stream.Meta.Title
		page.StreamDuration = meta.Stream.Meta.Duration
		page.IMDB = meta.Stream.Meta.IMDB
	}
	return page
}

// pickCode draws random codes until one misses the registry.
func (h *Handler) pickCode() (string, error) {
	for range codeAttempts {
		code, err := generateCode()
		if err != nil {
			return "", err
		}
		if _, taken := h.registry.Find(code); !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free code after %d attempts", codeAttempts)
}

// generateCode draws codeLength characters from the code alphabet.
func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

func normalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// validCode accepts explicit join codes: uppercase alphanumeric, at most
// maxCodeLen characters.
func validCode(code string) bool {
	if code == "" || len(code) > maxCodeLen {
		return false
	}
	for _, r := range code {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func (h *Handler) render(c *gin.Context, status int, name string, data any) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	if err := pages.ExecuteTemplate(c.Writer, name, data); err != nil {
		logging.Error(c.Request.Context(), "Template render failed",
			zap.Error(err), zap.String("template", name))
	}
}
