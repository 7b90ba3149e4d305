package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/castlemarket/castle-market/internal/market/models"
	"github.com/castlemarket/castle-market/internal/market/service"
	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const (
	actorKey contextKey = "actor"

	jwtExpirationTime = 24 * time.Hour
	bearerSchema      = "Bearer "
)

// Claims carries the actor identity inside the JWT.
type Claims struct {
	UserID int64       `json:"user_id"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken issues a signed token for the user.
func GenerateToken(userID int64, role models.Role, secretKey string) (string, error) {
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(jwtExpirationTime)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}

// ParseToken validates a token and returns the actor it identifies.
func ParseToken(tokenString, secretKey string) (service.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})
	if err != nil || !token.Valid {
		return service.Actor{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !claims.Role.Valid() {
		return service.Actor{}, errors.New("invalid token claims")
	}
	return service.Actor{ID: claims.UserID, Role: claims.Role}, nil
}

// Auth authenticates the request and stores the actor in the context. The
// actor is the only identity the services ever see.
func Auth(secretKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, bearerSchema) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			actor, err := ParseToken(strings.TrimPrefix(authHeader, bearerSchema), secretKey)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFrom extracts the authenticated actor from the request context.
func ActorFrom(ctx context.Context) (service.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(service.Actor)
	return actor, ok
}
