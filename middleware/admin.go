package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/oarkflow/date"

	"github.com/oarkflow/tenantauthz"
)

// AdminRecords is the record store surface the admin routes need.
type AdminRecords interface {
	tenantauthz.RecordWriter
	tenantauthz.RecordLister
}

// AdminOptions configures the operator routes.
type AdminOptions struct {
	Records AdminRecords
	// Audit is optional; /audit returns 404 without it.
	Audit tenantauthz.AuditQuerier
	// Guard runs before every admin route, typically a RequireRole from the
	// system tenant.
	Guard fiber.Handler
}

// MountAdmin registers:
//
//	GET    /records/:org
//	PUT    /records
//	DELETE /records/:org/:subject
//	GET    /audit?subject=&org=&outcome=&kind=&since=&until=&limit=
func MountAdmin(r fiber.Router, opts AdminOptions) error {
	if opts.Records == nil {
		return errors.New("middleware: admin records store is required")
	}
	if opts.Guard == nil {
		return errors.New("middleware: admin guard is required")
	}
	r.Get("/records/:org", opts.Guard, func(c *fiber.Ctx) error {
		recs, err := opts.Records.ListUserRecords(c.UserContext(), c.Params("org"))
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}
		return c.JSON(recs)
	})
	r.Put("/records", opts.Guard, func(c *fiber.Ctx) error {
		rec := &tenantauthz.UserRecord{}
		if err := c.BodyParser(rec); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid record body"})
		}
		if rec.OrganizationID == "" || rec.SubjectID == "" {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "organizationId and subjectId are required"})
		}
		if err := opts.Records.PutUserRecord(c.UserContext(), rec); err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}
		return c.SendStatus(http.StatusNoContent)
	})
	r.Delete("/records/:org/:subject", opts.Guard, func(c *fiber.Ctx) error {
		if err := opts.Records.DeleteUserRecord(c.UserContext(), c.Params("org"), c.Params("subject")); err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}
		return c.SendStatus(http.StatusNoContent)
	})
	r.Get("/audit", opts.Guard, func(c *fiber.Ctx) error {
		if opts.Audit == nil {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "audit log not configured"})
		}
		filter, err := auditFilter(c)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		events, err := opts.Audit.GetAuditLog(c.UserContext(), filter)
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}
		return c.JSON(events)
	})
	return nil
}

func auditFilter(c *fiber.Ctx) (tenantauthz.AuditFilter, error) {
	f := tenantauthz.AuditFilter{
		SubjectID:      c.Query("subject"),
		OrganizationID: c.Query("org"),
		Outcome:        tenantauthz.Outcome(c.Query("outcome")),
		ErrorKind:      tenantauthz.ErrorKind(c.Query("kind")),
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, errors.New("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	var err error
	if f.StartTime, err = queryTime(c, "since"); err != nil {
		return f, err
	}
	if f.EndTime, err = queryTime(c, "until"); err != nil {
		return f, err
	}
	return f, nil
}

// queryTime accepts any layout oarkflow/date understands.
func queryTime(c *fiber.Ctx, key string) (time.Time, error) {
	s := c.Query(key)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := date.Parse(s)
	if err != nil {
		return time.Time{}, errors.New(key + " is not a recognizable time")
	}
	return t, nil
}
