package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/attendance"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/auth"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/config"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/httpmiddleware"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/queue"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/roster"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/session"
)

// verifier is the slice of the attendance service the handlers use.
type verifier interface {
	Submit(ctx context.Context, sub attendance.Submission) (attendance.Result, error)
	ManualPresent(ctx context.Context, sessionID, teacherID, matricNo string) (attendance.Record, error)
	Records(ctx context.Context, sessionID, teacherID string) ([]attendance.Record, error)
}

// sessionRegistry is the slice of the session service the handlers use.
type sessionRegistry interface {
	Start(ctx context.Context, courseID, teacherID string, lat, lng, radiusM float64, duration time.Duration) (session.Session, error)
	EndEarly(ctx context.Context, sessionID, teacherID string) (session.Session, error)
}

// directory answers teacher and course lookups at the boundary.
type directory interface {
	TeacherByEmail(ctx context.Context, email, apiKey string) (*roster.Teacher, error)
	CourseByID(ctx context.Context, courseID string) (*roster.Course, error)
}

// apiDeps collects the collaborators the router closes over, so tests can
// drive the handlers with in-memory implementations.
type apiDeps struct {
	pipeline verifier
	sessions sessionRegistry
	people   directory
	queue    queue.Queue
	health   func(ctx context.Context) (redisOK, dbOK bool)
}

func newRouter(cfg config.App, d apiDeps) *gin.Engine {
	r := gin.New()

	// Recovery middleware
	r.Use(gin.Recovery())

	// Custom logger
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	// CORS middleware
	r.Use(corsMiddleware())

	// Security headers
	r.Use(securityHeaders())

	// Rate limiting
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy, dbHealthy := d.health(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/teachers/login", func(c *gin.Context) {
		var req struct {
			Email  string `json:"email" binding:"required,email"`
			APIKey string `json:"api_key" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		teacher, err := d.people.TeacherByEmail(c.Request.Context(), req.Email, req.APIKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}
		if teacher == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		tokens, err := auth.Issue(teacher.ID, teacher.Name, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
			"teacher":       teacher,
		})
	})

	// The student-facing submission endpoint. Input validation happens here;
	// the pipeline assumes range-checked values.
	r.POST("/v1/attendance/submit", func(c *gin.Context) {
		req, err := decodeSubmitRequest(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		sub := req.toSubmission(c.GetHeader("User-Agent"), c.ClientIP())
		res, err := d.pipeline.Submit(c.Request.Context(), sub)
		if err != nil {
			writeSubmitError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"message":           "attendance recorded",
			"status":            res.Record.Status,
			"student_name":      res.StudentName,
			"matric_no":         res.Record.MatricNo,
			"course_code":       res.CourseCode,
			"course_title":      res.CourseTitle,
			"teacher_name":      res.TeacherName,
			"session_code":      res.SessionCode,
			"submitted_at":      res.Record.SubmittedAt,
			"distance_m":        res.Record.DistanceM,
			"receipt_signature": res.Record.ReceiptSignature,
			"checks_passed":     res.ChecksPassed,
		})
	})

	authGroup := r.Group("/v1", auth.TeacherAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/sessions", func(c *gin.Context) {
		claims := teacherClaims(c)
		var req struct {
			CourseID        string  `json:"course_id" binding:"required"`
			Lat             float64 `json:"lat" binding:"min=-90,max=90"`
			Lng             float64 `json:"lng" binding:"min=-180,max=180"`
			RadiusM         float64 `json:"radius_m" binding:"required,gt=0"`
			DurationMinutes int     `json:"duration_minutes" binding:"required,gt=0"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		course, err := d.people.CourseByID(c.Request.Context(), req.CourseID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "course lookup failed"})
			return
		}
		if course == nil || course.TeacherID != claims.TeacherID {
			c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
			return
		}

		sess, err := d.sessions.Start(c.Request.Context(), course.ID, claims.TeacherID,
			req.Lat, req.Lng, req.RadiusM, time.Duration(req.DurationMinutes)*time.Minute)
		if err != nil {
			var conflict *session.ConflictError
			if errors.As(err, &conflict) {
				c.JSON(http.StatusConflict, gin.H{
					"error":         "an active session already exists for this course",
					"existing_code": conflict.ExistingCode,
					"expires_at":    conflict.ExpiresAt,
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session start failed"})
			return
		}

		msg, err := queue.NewSessionStartedMessage(queue.SessionStarted{
			SessionID:   sess.ID,
			CourseID:    course.ID,
			CourseCode:  course.Code,
			TeacherName: course.TeacherName,
			Code:        sess.Code,
			ExpiresAt:   sess.ExpiresAt,
		})
		if err == nil {
			if err := d.queue.Publish(c.Request.Context(), msg); err != nil {
				log.Printf("queue publish failed: %v", err)
			}
		}

		c.JSON(http.StatusCreated, sess)
	})

	authGroup.POST("/sessions/:id/end", func(c *gin.Context) {
		claims := teacherClaims(c)
		sess, err := d.sessions.EndEarly(c.Request.Context(), c.Param("id"), claims.TeacherID)
		if err != nil {
			switch {
			case errors.Is(err, session.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			case errors.Is(err, session.ErrAlreadyExpired):
				c.JSON(http.StatusBadRequest, gin.H{"error": "session already expired"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "end session failed"})
			}
			return
		}
		c.JSON(http.StatusOK, sess)
	})

	authGroup.GET("/sessions/:id/records", func(c *gin.Context) {
		claims := teacherClaims(c)
		records, err := d.pipeline.Records(c.Request.Context(), c.Param("id"), claims.TeacherID)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list records failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
	})

	authGroup.POST("/sessions/:id/manual", func(c *gin.Context) {
		claims := teacherClaims(c)
		var req struct {
			MatricNo string `json:"matric_no" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rec, err := d.pipeline.ManualPresent(c.Request.Context(), c.Param("id"), claims.TeacherID, req.MatricNo)
		if err != nil {
			switch {
			case errors.Is(err, session.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			case errors.Is(err, attendance.ErrStudentNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "matric number not registered"})
			default:
				var dup *attendance.AlreadySubmittedError
				if errors.As(err, &dup) {
					c.JSON(http.StatusBadRequest, gin.H{
						"error":           "attendance already recorded for this student",
						"previous_status": dup.PriorStatus,
						"submitted_at":    dup.SubmittedAt,
					})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": "manual override failed"})
			}
			return
		}
		c.JSON(http.StatusCreated, rec)
	})

	return r
}

func teacherClaims(c *gin.Context) auth.Claims {
	claimsAny, _ := c.Get("claims")
	claims, _ := claimsAny.(auth.Claims)
	return claims
}

// writeSubmitError maps every expected pipeline outcome to its status code
// and response shape; only genuine infrastructure faults fall through to 500.
func writeSubmitError(c *gin.Context, err error) {
	var (
		notEnrolled *roster.NotEnrolledError
		mismatch    *roster.LevelMismatchError
		dup         *attendance.AlreadySubmittedError
		inUse       *attendance.DeviceInUseError
		outOfRange  *attendance.OutOfRangeError
	)

	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid or expired session code"})
	case errors.Is(err, attendance.ErrStudentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "matric number not registered"})
	case errors.As(err, &notEnrolled):
		c.JSON(http.StatusForbidden, gin.H{
			"error":        "you are not enrolled in this course",
			"course_code":  notEnrolled.CourseCode,
			"course_title": notEnrolled.CourseTitle,
			"teacher_name": notEnrolled.TeacherName,
		})
	case errors.As(err, &mismatch):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":         "student level does not match course level",
			"student_level": mismatch.StudentLevel,
			"course_level":  mismatch.CourseLevel,
		})
	case errors.As(err, &dup):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":           "attendance already submitted for this session",
			"previous_status": dup.PriorStatus,
			"submitted_at":    dup.SubmittedAt,
		})
	case errors.As(err, &inUse):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":        "this device has already been used in this session",
			"used_by_name": inUse.StudentName,
			"used_by":      inUse.MatricNo,
			"submitted_at": inUse.SubmittedAt,
		})
	case errors.Is(err, attendance.ErrSessionExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "session has expired"})
	case errors.As(err, &outOfRange):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":           "you are outside the allowed session area",
			"actual_distance": outOfRange.DistanceM,
			"required_radius": outOfRange.RadiusM,
		})
	default:
		log.Printf("submission pipeline error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
