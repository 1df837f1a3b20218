package handlers

import (
	"net/http"

	"github.com/faxretriever/broker/internal/handlers/middleware"
	"github.com/faxretriever/broker/internal/handlers/render"
	"github.com/faxretriever/broker/internal/logger"
	"github.com/faxretriever/broker/internal/obs"
	"github.com/faxretriever/broker/internal/service/issuer"
	"github.com/faxretriever/broker/internal/service/registry"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

// assignmentsService is the full assignment surface the router wires:
// device-initiated releases plus the admin clear.
type assignmentsService interface {
	assignmentService
	assignmentAdmin
}

type RouterConfig struct {
	Issuer      *issuer.Service
	Bearer      bearerService
	Registry    *registry.Service
	Resellers   resellerService
	Assignments assignmentsService
	Audit       auditSource
	AdminKey    string
	Logger      logger.Logger
}

func NewRouter(c RouterConfig) http.Handler {
	authMiddleware := middleware.AuthMiddleware(c.Issuer, c.Registry)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}

	root := http.NewServeMux()

	root.Handle("POST /init", handleInit(c.Issuer, c.Logger))
	root.Handle("POST /bearer", withAuth(handleBearer(c.Bearer, c.Registry, c.Logger)))
	root.Handle("POST /assignments/release", withAuth(handleAssignmentsRelease(c.Assignments, c.Logger)))

	admin := http.NewServeMux()
	admin.Handle("POST /clients", handleAdminCreateClient(c.Registry, c.Logger))
	admin.Handle("GET /clients", handleAdminListClients(c.Registry, c.Logger))
	admin.Handle("POST /clients/{id}/active", handleAdminClientActive(c.Registry, c.Logger))
	admin.Handle("POST /clients/{id}/token", handleAdminClientReissueToken(c.Registry, c.Logger))
	admin.Handle("PUT /clients/{id}/numbers", handleAdminClientNumbers(c.Registry, c.Logger))
	admin.Handle("POST /resellers", handleAdminCreateReseller(c.Resellers, c.Logger))
	admin.Handle("GET /resellers", handleAdminListResellers(c.Resellers, c.Logger))
	admin.Handle("POST /resellers/{id}/credentials", handleAdminRotateCredentials(c.Resellers, c.Logger))
	admin.Handle("POST /resellers/{id}/active", handleAdminResellerActive(c.Resellers, c.Logger))
	admin.Handle("POST /assignments/clear", handleAdminAssignmentClear(c.Assignments, c.Logger))
	admin.Handle("GET /audit", handleAdminListAuditEvents(c.Audit, c.Logger))

	adminMiddleware := middleware.AdminKeyMiddleware(c.AdminKey)
	root.Handle("/admin/", http.StripPrefix("/admin", adminMiddleware(admin)))

	root.Handle("GET /health", handleHealth())
	root.Handle("GET /metrics", obs.Handler())

	handler := chain(root,
		middleware.LoggerMiddleware(c.Logger),
		obs.Instrument,
	)

	return handler
}

func handleHealth() http.Handler {
	type response struct {
		Status string `json:"status"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, response{Status: "ok"})
	})
}
