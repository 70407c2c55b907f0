package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"deepfakeapi/globals"
	"deepfakeapi/utils"
)

// JWT claims
type Claims struct {
	Username string   `json:"username"`
	UserID   string   `json:"userId"`
	Role     []string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticate requires a valid HS256 bearer token signed with secret. An
// empty secret disables the check.
func Authenticate(secret []byte) func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		if len(secret) == 0 {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing token")
				return
			}
			if len(tokenString) < 8 || tokenString[:7] != "Bearer " {
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid token format")
				return
			}

			claims, err := ValidateJWT(tokenString[7:], secret)
			if err != nil {
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			subject := claims.UserID
			if subject == "" {
				subject = claims.Subject
			}
			ctx := context.WithValue(r.Context(), globals.SubjectKey, subject)
			next(w, r.WithContext(ctx), ps)
		}
	}
}

func ValidateJWT(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("unauthorized: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("unauthorized: invalid token")
	}
	return claims, nil
}

// SecurityHeaders applies a set of recommended HTTP security headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// XSS, content sniffing, framing
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// RequestID tags each request with an id, reusing X-Request-ID when the
// client sent one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), globals.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RealIP rewrites RemoteAddr to the forwarded client address when the peer
// is a trusted proxy, so rate limiting and logging see the real client.
func RealIP(proxies utils.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(proxies) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip := proxies.ForwardedFor(r); ip != utils.ClientIP(r) {
				r2 := r.Clone(r.Context())
				r2.RemoteAddr = net.JoinHostPort(ip, "0")
				r = r2
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDFrom returns the id stored by RequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(globals.RequestIDKey).(string)
	return id
}

// Recovery turns a panic into a 500 response.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic recovered",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.String("request_id", RequestIDFrom(r.Context())),
						zap.ByteString("stack", debug.Stack()),
					)
					utils.RespondWithError(w, http.StatusInternalServerError, fmt.Sprint(err))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Logging logs each request method, path, remote address, and duration.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.RequestURI),
				zap.String("remote", utils.ClientIP(r)),
				zap.String("request_id", RequestIDFrom(r.Context())),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// Chain composes route middlewares; the first one runs first.
func Chain(mws ...func(httprouter.Handle) httprouter.Handle) func(httprouter.Handle) httprouter.Handle {
	return func(final httprouter.Handle) httprouter.Handle {
		for i := len(mws) - 1; i >= 0; i-- {
			final = mws[i](final)
		}
		return final
	}
}

// Wrap applies server middlewares around h; the first one is the outermost.
func Wrap(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
