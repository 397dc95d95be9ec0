package handler

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/auth"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/realtime"
)

// Options carries what the router needs besides the Handler.
type Options struct {
	Signer      auth.Signer
	Stream      *realtime.Stream
	Limiter     *httpmiddleware.TokenBucket
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
	Checks      []Check
	// AccessLog enables gin request logging.
	AccessLog bool
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(h *Handler, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if opts.AccessLog {
		r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
			SkipPaths: []string{"/healthz", "/metrics"},
		}))
	}
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())

	limit := func(c *gin.Context) { c.Next() }
	if opts.Limiter != nil {
		limit = opts.Limiter.Middleware()
	}

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/healthz", Healthz(opts.Checks...))

	api := r.Group("/api")
	api.POST("/auth/register", limit, h.Register)
	api.POST("/auth/login", limit, h.Login)

	if opts.Stream != nil {
		api.GET("/ws", auth.StreamGuard(opts.Signer), auth.Require(auth.CapSubscribe), opts.Stream.Handle)
	}

	authed := api.Group("", auth.SessionGuard(opts.Signer), limit)

	students := authed.Group("/auth", auth.Require(auth.CapManageStudents))
	students.GET("/students", h.AssignedStudents)
	students.GET("/unassigned-students", h.AllStudents)
	students.POST("/assign-students", h.AssignStudents)

	classes := authed.Group("/class", auth.Require(auth.CapManageClasses))
	classes.POST("/create", h.CreateClass)
	classes.GET("/teacher-classes", h.TeacherClasses)
	classes.POST("/add-students", h.AddStudents)
	classes.GET("/:classId/students", h.ClassStudents)
	classes.DELETE("/:classId", h.DeleteClass)

	att := authed.Group("/attendance")
	att.POST("/mark", auth.Require(auth.CapMarkAttendance), h.Mark)
	att.POST("/mark-bulk", auth.Require(auth.CapMarkAttendance), h.MarkBulk)
	att.GET("/student", auth.Require(auth.CapViewOwnAttendance), h.OwnAttendance)
	att.GET("/class/:classId/date/:date", auth.Require(auth.CapViewClassAttendance), h.ClassAttendance)
	att.GET("/date/:date", auth.Require(auth.CapViewClassAttendance), h.AttendanceOnDate)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
	})
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	}
	return cfg
}
