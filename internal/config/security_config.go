// config/security_config.go
package config

type SecurityLevel int

const (
	SecurityPublic   SecurityLevel = iota // No authentication
	SecurityCustomer                      // Any valid access token
	SecurityAdmin                         // Access token with the admin role
)

// EndpointSecurityConfig maps "METHOD /route/template" to the required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Catalog - Public
	"GET /api/tools":                      SecurityPublic,
	"GET /api/tools/meta/categories":      SecurityPublic,
	"GET /api/tools/meta/popular":         SecurityPublic,
	"GET /api/tools/{id}":                 SecurityPublic,
	"GET /api/tools/{id}/availability":    SecurityPublic,
	"GET /api/tools/{id}/pricing":         SecurityPublic,
	"GET /manage/health":                  SecurityPublic,

	// Catalog - Admin
	"POST /api/tools":                     SecurityAdmin,
	"PUT /api/tools/{id}":                 SecurityAdmin,
	"DELETE /api/tools/{id}":              SecurityAdmin,
	"GET /api/tools/meta/low-stock":       SecurityAdmin,
	"GET /api/tools/{id}/stock-movements": SecurityAdmin,

	// Bookings - Customer
	"POST /api/bookings":              SecurityCustomer,
	"GET /api/bookings/my":            SecurityCustomer,
	"GET /api/bookings/{id}":          SecurityCustomer,
	"PUT /api/bookings/{id}/confirm":  SecurityCustomer,
	"PUT /api/bookings/{id}/cancel":   SecurityCustomer,

	// Bookings - Admin
	"GET /api/bookings": SecurityAdmin,

	// Orders - Customer
	"POST /api/orders":              SecurityCustomer,
	"GET /api/orders/{id}":          SecurityCustomer,
	"GET /api/orders/{id}/history":  SecurityCustomer,
	"PUT /api/orders/{id}/cancel":   SecurityCustomer,

	// Orders - Admin
	"GET /api/orders":                  SecurityAdmin,
	"GET /api/orders/meta/statistics":  SecurityAdmin,
	"PUT /api/orders/{id}/status":      SecurityAdmin,
	"PUT /api/orders/{id}/payment":     SecurityAdmin,
	"PUT /api/orders/{id}/delivery":    SecurityAdmin,
}

// GetSecurityLevel returns the security level for a given route
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown endpoints
	return SecurityAdmin
}
