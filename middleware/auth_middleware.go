package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/models"
	"github.com/rudironsoni/Synaxis-sub005/repositories"
	"github.com/rudironsoni/Synaxis-sub005/services"
	"github.com/rudironsoni/Synaxis-sub005/utils"
)

var (
	// ErrInvalidToken is returned when a bearer JWT fails validation
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a bearer JWT has expired
	ErrTokenExpired = errors.New("token expired")
)

// Cache key prefixes keep API-key-hash lookups and tenant-key lookups from
// colliding in the shared cache.
const (
	cachePrefixHash = "hash:"
	cachePrefixKey  = "key:"
)

// TenantAuth resolves the calling tenant from the Authorization header. A
// bearer credential is either a tenant API key, matched by SHA-256 hash
// against the tenant table, or an HS256 JWT whose subject is the tenant
// key. Lookups go through an LRU cache so the table stays off the hot path.
type TenantAuth struct {
	tenants   repositories.TenantRepository
	cache     *TenantCache
	jwtSecret []byte
	logger    *zap.Logger
}

// NewTenantAuth creates a new TenantAuth. An empty jwtSecret disables the
// JWT credential path; API keys keep working.
func NewTenantAuth(tenants repositories.TenantRepository, cache *TenantCache, jwtSecret string, logger *zap.Logger) *TenantAuth {
	var secret []byte
	if jwtSecret != "" {
		secret = []byte(jwtSecret)
	}
	return &TenantAuth{
		tenants:   tenants,
		cache:     cache,
		jwtSecret: secret,
		logger:    logger,
	}
}

// HashAPIKey returns the hex SHA-256 digest of an API key. Only digests are
// stored and compared; the plaintext key never touches the database.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// tenantClaims carries the registered claim set; the subject is the tenant
// key.
type tenantClaims struct {
	jwt.RegisteredClaims
}

// RequireTenant is a middleware that requires a valid tenant credential.
// The resolved tenant is added to the request context. Errors are written
// in the OpenAI wire shape since this guards the inference surface.
func (m *TenantAuth) RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := extractBearerToken(r)
		if token == "" {
			m.logger.Warn("missing bearer credential",
				zap.String("path", r.URL.Path))
			_ = utils.WriteOpenAIError(w, http.StatusUnauthorized,
				"invalid_request_error", "invalid_api_key",
				"Missing bearer credential. Pass your API key in the Authorization header.")
			return
		}

		tenant, err := m.resolve(ctx, token)
		if err != nil {
			m.writeAuthError(w, err)
			return
		}

		if !tenant.Active {
			m.logger.Warn("disabled tenant rejected",
				zap.String("tenant", tenant.Key))
			_ = utils.WriteOpenAIError(w, http.StatusForbidden,
				"invalid_request_error", "tenant_disabled",
				"This tenant account is disabled.")
			return
		}

		m.logger.Debug("tenant authenticated",
			zap.String("tenant", tenant.Key))

		next.ServeHTTP(w, r.WithContext(WithTenant(ctx, tenant)))
	})
}

// resolve maps a bearer credential to a tenant. Tokens shaped like a JWT
// (three dot-separated segments) take the JWT path; everything else is
// treated as an API key.
func (m *TenantAuth) resolve(ctx context.Context, token string) (*models.Tenant, error) {
	if strings.Count(token, ".") == 2 && len(m.jwtSecret) > 0 {
		key, err := m.tenantKeyFromJWT(token)
		if err != nil {
			return nil, err
		}
		return m.lookup(ctx, cachePrefixKey+key, func(ctx context.Context) (*models.Tenant, error) {
			return m.tenants.GetByKey(ctx, key)
		})
	}

	hash := HashAPIKey(token)
	return m.lookup(ctx, cachePrefixHash+hash, func(ctx context.Context) (*models.Tenant, error) {
		return m.tenants.GetByAPIKeyHash(ctx, hash)
	})
}

// lookup consults the cache before hitting the repository. Only found
// tenants are cached: a negative entry would let a newly issued key keep
// failing for a full TTL.
func (m *TenantAuth) lookup(ctx context.Context, cacheKey string, fetch func(context.Context) (*models.Tenant, error)) (*models.Tenant, error) {
	if tenant := m.cache.Get(cacheKey); tenant != nil {
		return tenant, nil
	}

	tenant, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	m.cache.Set(cacheKey, tenant)
	return tenant, nil
}

// tenantKeyFromJWT validates an HS256 token and returns its subject.
func (m *TenantAuth) tenantKeyFromJWT(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &tenantClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*tenantClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return claims.Subject, nil
}

// writeAuthError maps a resolution failure onto the wire. Unknown
// credentials and bad tokens are indistinguishable to the caller; a dead
// tenant store must not turn valid keys into 401s.
func (m *TenantAuth) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		m.logger.Warn("expired bearer token")
		_ = utils.WriteOpenAIError(w, http.StatusUnauthorized,
			"invalid_request_error", "token_expired",
			"The bearer token has expired.")
	case errors.Is(err, ErrInvalidToken), services.IsNotFoundError(err):
		m.logger.Warn("credential rejected", zap.Error(err))
		_ = utils.WriteOpenAIError(w, http.StatusUnauthorized,
			"invalid_request_error", "invalid_api_key",
			"Incorrect API key provided.")
	default:
		m.logger.Error("tenant lookup failed", zap.Error(err))
		_ = utils.WriteOpenAIError(w, http.StatusServiceUnavailable,
			"server_error", "authentication_unavailable",
			"Authentication is temporarily unavailable.")
	}
}

// AdminAuth gates a route group behind a static bearer token. An empty
// configured token disables the group entirely.
func AdminAuth(adminToken string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminToken == "" {
				logger.Warn("admin route hit with no admin token configured",
					zap.String("path", r.URL.Path))
				_ = utils.WriteForbidden(w, "Admin access is not configured")
				return
			}

			token := extractBearerToken(r)
			if token == "" {
				_ = utils.WriteUnauthorized(w, "Missing admin token")
				return
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
				logger.Warn("invalid admin token",
					zap.String("path", r.URL.Path))
				_ = utils.WriteForbidden(w, "Invalid admin token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	// Check if it starts with "Bearer "
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
