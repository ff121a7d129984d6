package reconciler

import (
	"context"

	"github.com/lintasdata/enforcer/internal/platform/router"
	"github.com/lintasdata/enforcer/pkg/logctx"
	"github.com/lintasdata/enforcer/pkg/types"
)

// applyPPPoE sets the secret's profile and disabled flag, then kicks any
// active session so the new profile takes effect on reconnect. Disconnect
// failures are logged and swallowed: the user may simply not be online.
func (s *Service) applyPPPoE(ctx context.Context, conn router.Conn, username string, target types.EnforcementTarget) types.EnforceResult {
	log := logctx.FromCtx(ctx, s.log)

	secrets, err := conn.Run(ctx, "/ppp/secret/print", "?name="+username)
	if err != nil {
		s.metrics.DeviceErrors.WithLabelValues("ppp_secret_print").Inc()
		return types.Failed("read secret %s: %v", username, err)
	}
	if len(secrets) == 0 {
		return types.Failed("pppoe secret %s not found on router", username)
	}

	disabled := "no"
	if target.Disabled {
		disabled = "yes"
	}
	_, err = conn.Run(ctx, "/ppp/secret/set",
		"=.id="+secrets[0][".id"],
		"=profile="+target.Profile,
		"=disabled="+disabled,
	)
	if err != nil {
		s.metrics.DeviceErrors.WithLabelValues("ppp_secret_set").Inc()
		return types.Failed("set profile %s on secret %s: %v", target.Profile, username, err)
	}

	active, err := conn.Run(ctx, "/ppp/active/print", "?name="+username)
	if err != nil {
		log.Warnw("pppoe: cannot list active sessions", "username", username, "err", err)
		return types.Ok("profile %s set on %s (session state unknown)", target.Profile, username)
	}
	for _, session := range active {
		if _, err := conn.Run(ctx, "/ppp/active/remove", "=.id="+session[".id"]); err != nil {
			log.Warnw("pppoe: disconnect failed", "username", username, "session_id", session[".id"], "err", err)
		}
	}
	return types.Ok("profile %s set on %s, %d session(s) disconnected", target.Profile, username, len(active))
}
