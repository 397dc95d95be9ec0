package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/model"
	"rollcall/internal/roster"
)

// Handler serves the /api routes.
type Handler struct {
	roster     *roster.Service
	attendance *attendance.Service
}

func New(r *roster.Service, a *attendance.Service) *Handler {
	configureValidator()
	return &Handler{roster: r, attendance: a}
}

// ---------- Auth ----------

func (h *Handler) Register(c *gin.Context) {
	var req roster.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		registrationFailed(c, bindError(err))
		return
	}
	u, err := h.roster.Register(c.Request.Context(), req)
	if err != nil {
		registrationFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Registration successful", "user": u})
}

func registrationFailed(c *gin.Context, err error) {
	if errors.Is(err, model.ErrValidation) || errors.Is(err, model.ErrConflict) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Registration failed: " + reason(err)})
		return
	}
	fail(c, err)
}

func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid credentials"})
		return
	}
	sess, err := h.roster.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) AssignedStudents(c *gin.Context) {
	students, err := h.roster.StudentsOf(c.Request.Context(), caller(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, students)
}

func (h *Handler) AllStudents(c *gin.Context) {
	students, err := h.roster.AllStudents(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, students)
}

func (h *Handler) AssignStudents(c *gin.Context) {
	var req struct {
		StudentIDs []string `json:"studentIds" binding:"required,min=1,dive,required"`
	}
	if !bind(c, &req) {
		return
	}
	n, err := h.roster.AssignStudents(c.Request.Context(), caller(c), req.StudentIDs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Students assigned successfully", "assigned": n})
}

// ---------- Classes ----------

func (h *Handler) CreateClass(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	class, err := h.roster.CreateClass(c.Request.Context(), caller(c), req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, class)
}

func (h *Handler) TeacherClasses(c *gin.Context) {
	classes, err := h.roster.TeacherClasses(c.Request.Context(), caller(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, classes)
}

func (h *Handler) AddStudents(c *gin.Context) {
	var req struct {
		ClassID    string   `json:"classId" binding:"required"`
		StudentIDs []string `json:"studentIds" binding:"required,min=1,dive,required"`
	}
	if !bind(c, &req) {
		return
	}
	class, err := h.roster.AddStudents(c.Request.Context(), caller(c), req.ClassID, req.StudentIDs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, class)
}

func (h *Handler) ClassStudents(c *gin.Context) {
	students, err := h.roster.ClassStudents(c.Request.Context(), caller(c), c.Param("classId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, students)
}

func (h *Handler) DeleteClass(c *gin.Context) {
	if err := h.roster.DeleteClass(c.Request.Context(), caller(c), c.Param("classId")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Class deleted"})
}

// ---------- Attendance ----------

func (h *Handler) Mark(c *gin.Context) {
	var req struct {
		StudentID string `json:"studentId" binding:"required"`
		ClassID   string `json:"classId" binding:"required"`
		Date      string `json:"date" binding:"required"`
		Status    string `json:"status" binding:"required,oneof=present absent"`
	}
	if !bind(c, &req) {
		return
	}
	rec, err := h.attendance.MarkOne(c.Request.Context(), attendance.MarkInput{
		StudentID: req.StudentID,
		ClassID:   req.ClassID,
		Date:      req.Date,
		Status:    req.Status,
		MarkedBy:  caller(c),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) MarkBulk(c *gin.Context) {
	var req struct {
		ClassID string                 `json:"classId" binding:"required"`
		Date    string                 `json:"date" binding:"required"`
		Entries []attendance.BulkEntry `json:"entries" binding:"required,min=1,dive"`
	}
	if !bind(c, &req) {
		return
	}
	res, err := h.attendance.MarkBulk(c.Request.Context(), attendance.BulkInput{
		ClassID:  req.ClassID,
		Date:     req.Date,
		MarkedBy: caller(c),
		Entries:  req.Entries,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) OwnAttendance(c *gin.Context) {
	recs, err := h.attendance.ListForStudent(c.Request.Context(), caller(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *Handler) ClassAttendance(c *gin.Context) {
	ctx := c.Request.Context()
	classID := c.Param("classId")
	if _, err := h.attendance.AuthorizeClass(ctx, classID, caller(c)); err != nil {
		fail(c, err)
		return
	}
	recs, err := h.attendance.ListForClassAndDate(ctx, classID, c.Param("date"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *Handler) AttendanceOnDate(c *gin.Context) {
	recs, err := h.attendance.ListForDate(c.Request.Context(), caller(c), c.Param("date"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

// ---------- Health ----------

// Check reports whether a dependency is reachable.
type Check struct {
	Name    string
	Healthy func(ctx context.Context) bool
}

// Healthz answers 503 when any check fails.
func Healthz(checks ...Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok"}
		for _, chk := range checks {
			ok := chk.Healthy(c.Request.Context())
			body[chk.Name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	}
}

// ---------- helpers ----------

func caller(c *gin.Context) string {
	id, _ := auth.IdentityFrom(c)
	return id.SubjectID
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, bindError(err))
		return false
	}
	return true
}

// fail maps the error taxonomy onto HTTP responses.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, roster.ErrBadLogin):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid credentials"})
	case errors.Is(err, model.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Access denied - No token provided"})
	case errors.Is(err, model.ErrInvalidCredential):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid token"})
	case errors.Is(err, model.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"message": "Access denied"})
	case errors.Is(err, model.ErrClassNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Class not found"})
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
	case errors.Is(err, model.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"message": reason(err)})
	case errors.Is(err, model.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"message": reason(err)})
	default:
		log.Printf("handler: %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
	}
}

// reason strips the taxonomy prefix from a wrapped error.
func reason(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{model.ErrValidation, model.ErrConflict} {
		msg = strings.TrimPrefix(msg, sentinel.Error()+": ")
	}
	return msg
}
