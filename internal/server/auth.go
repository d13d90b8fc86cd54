package server

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/fieldbooks/internal/authorization"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
)

const bearerPrefix = "bearer "

var errTokenSecret = errors.New("jwt secret is not configured")

// Claims is the bearer token payload. Tokens are issued by the identity provider; IssueToken
// exists for local development and tests.
type Claims struct {
	OrgID    string `json:"org_id"`
	Role     string `json:"role"`
	VendorID string `json:"vendor_id,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs claims with HS256.
func IssueToken(secret string, claims Claims) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errTokenSecret
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// NewClaims builds claims for subject valid for ttl from now.
func NewClaims(subject, issuer string, orgID snowflake.ID, role string, vendorID *snowflake.ID, now time.Time, ttl time.Duration) Claims {
	claims := Claims{
		OrgID: orgID.String(),
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if vendorID != nil {
		claims.VendorID = vendorID.String()
	}
	return claims
}

func parseToken(raw, secret, issuer string) (*Claims, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errTokenSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// actor turns verified claims into the org and actor carried on the request context.
func (c *Claims) actor() (snowflake.ID, orgcontext.Actor, error) {
	orgID, err := snowflake.ParseString(strings.TrimSpace(c.OrgID))
	if err != nil || orgID == 0 {
		return 0, orgcontext.Actor{}, ErrUnauthorized
	}
	subject := strings.TrimSpace(c.Subject)
	if subject == "" {
		return 0, orgcontext.Actor{}, ErrUnauthorized
	}

	actor := orgcontext.Actor{ID: subject, Role: strings.ToLower(strings.TrimSpace(c.Role))}
	if raw := strings.TrimSpace(c.VendorID); raw != "" {
		vendorID, err := snowflake.ParseString(raw)
		if err != nil || vendorID == 0 {
			return 0, orgcontext.Actor{}, ErrUnauthorized
		}
		actor.VendorID = &vendorID
	}
	// Portal users must be pinned to a vendor, and only portal users may be.
	if (actor.Role == authorization.RoleVendor) != (actor.VendorID != nil) {
		return 0, orgcontext.Actor{}, ErrUnauthorized
	}
	return orgID, actor, nil
}

// AuthRequired verifies the bearer token and stores the org and actor on the request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims, err := parseToken(strings.TrimSpace(header[len(bearerPrefix):]), s.cfg.AuthJWTSecret, s.cfg.AuthJWTIssuer)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		orgID, actor, err := claims.actor()
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), orgID)
		ctx = orgcontext.WithActor(ctx, actor)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// authorize gates a route on the casbin policy for the request's actor.
func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authzSvc.Authorize(c.Request.Context(), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
