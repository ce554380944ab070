package examserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/exstem-client/internal/apierr"
	"github.com/stemsi/exstem-client/internal/response"
)

const contextKeyClaims = "claims"

// Claims extends JWT standard claims with the student identity.
type Claims struct {
	jwt.RegisteredClaims
	StudentID string `json:"student_id"`
}

// IssueStudentToken mints a signed student bearer token.
func (s *Server) IssueStudentToken(studentID string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   studentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiry)),
		},
		StudentID: studentID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// validateToken parses and verifies a bearer token string.
func (s *Server) validateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// requireStudentJWT validates a student JWT from the Authorization header,
// falling back to the ?token= query param (WebSocket upgrades cannot send
// headers from browsers).
func (s *Server) requireStudentJWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := ""

		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				tokenStr = parts[1]
			}
		}
		if tokenStr == "" {
			tokenStr = c.Query("token")
		}
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, apierr.CodeTokenRequired)
			return
		}

		claims, err := s.validateToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, apierr.CodeTokenInvalid)
			return
		}

		c.Set(contextKeyClaims, claims)
		c.Next()
	}
}

// getClaims retrieves the JWT claims from the Gin context.
func getClaims(c *gin.Context) *Claims {
	val, exists := c.Get(contextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*Claims)
	if !ok {
		return nil
	}
	return claims
}
