package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/valyala/fasthttp"
)

// SharedSecret authenticates scheduler and admin calls: the secret may arrive
// as a Bearer token or a ?secret= query parameter. An empty configured secret
// rejects everything — worker endpoints are never open by accident.
func SharedSecret(secret string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if secret == "" {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("worker secret not configured")
				return
			}

			presented := string(ctx.QueryArgs().Peek("secret"))
			if presented == "" {
				auth := string(ctx.Request.Header.Peek("Authorization"))
				const prefix = "Bearer "
				if strings.HasPrefix(auth, prefix) {
					presented = strings.TrimSpace(auth[len(prefix):])
				}
			}

			if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("invalid secret")
				return
			}

			next(ctx)
		}
	}
}
