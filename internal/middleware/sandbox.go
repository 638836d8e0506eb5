package middleware

import (
	"net/http"

	"github.com/maxiofs/ps3/internal/sandbox"
	"github.com/sirupsen/logrus"
)

// SandboxOwnerHeader carries a base64 sandbox.EncodeMetadata-encoded TaskID
// identifying the owner a request should be allowed to.
const SandboxOwnerHeader = "X-Ps3-Sandbox-Owner"

// SandboxAllowance mints a TaskID for every request and, when the header is
// present and decodable, allows that TaskID to the named owner (forcing the
// allowance if the request was already allowed to a different owner).
// Any failure, such as a missing/garbled header or an unknown owner, is
// swallowed: the request proceeds under whatever the registry's Mode dictates.
func SandboxAllowance(registry *sandbox.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			task := sandbox.NewTaskID()

			if encoded := r.Header.Get(SandboxOwnerHeader); encoded != "" {
				owner, err := sandbox.DecodeMetadata(encoded)
				if err != nil {
					logrus.WithError(err).Debug("sandbox: undecodable owner header")
				} else if err := registry.Allow(task, owner); err != nil {
					if err == sandbox.ErrAlreadyAllowed {
						if err := registry.ForceAllow(task, owner); err != nil {
							logrus.WithError(err).Debug("sandbox: force-allow failed")
						}
					} else {
						logrus.WithError(err).Debug("sandbox: allow failed")
					}
				}
			}

			ctx := sandbox.WithTask(r.Context(), task)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
